package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ckmame/ckmame/pkg/ckmameinfo"
)

func init() {
	// fatih/color already disables color when NO_COLOR is set or output
	// isn't recognized as a console, but that check runs against stdout;
	// logging writes through the standard logger, which defaults to
	// stderr, so check that stream explicitly.
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}
}

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(ckmameinfo.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "ckmame",
	Short: "ckmame verifies and repairs ROM sets against a catalog",
	Run:   rootMain,
}

var rootConfiguration struct {
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		verifyCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
