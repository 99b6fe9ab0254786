// Package ckmameinfo provides version and legal information for the ckmame
// engine and CLI.
package ckmameinfo

import "fmt"

const (
	// VersionMajor represents the current major version of ckmame.
	VersionMajor = 0
	// VersionMinor represents the current minor version of ckmame.
	VersionMinor = 1
	// VersionPatch represents the current patch version of ckmame.
	VersionPatch = 0
)

// Version is the human-readable version string.
var Version string

// DebugEnabled controls whether Logger.Debug* calls actually emit output. It
// is set from the CLI's --debug flag.
var DebugEnabled bool

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// LegalNotice provides license notices for ckmame and its third-party
// dependencies.
const LegalNotice = `ckmame

A verification and repair engine for ROM collections.

================================================================================
ckmame depends on the following third-party software:
================================================================================

BurntSushi/toml, spf13/cobra, spf13/pflag, pkg/errors, fatih/color,
mattn/go-isatty, dustin/go-humanize, google/uuid, golang.org/x/text,
golang.org/x/sys, modernc.org/sqlite, bodgit/sevenzip.

Each is distributed under the terms of its own license.
`
