package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"github.com/ckmame/ckmame/pkg/ckmameinfo"
	"github.com/ckmame/ckmame/pkg/engine"
	"github.com/ckmame/ckmame/pkg/engineconfig"
	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/matcher"
)

var verifyConfiguration struct {
	config  string
	catalog string
	fix     bool
	debug   bool
}

var verifyCommand = &cobra.Command{
	Use:   "verify",
	Short: "Verify a ROM set against its catalog, optionally repairing it",
	RunE:  verifyMain,
}

func init() {
	flags := verifyCommand.Flags()
	flags.StringVar(&verifyConfiguration.config, "config", "ckmame.toml", "engine configuration file")
	flags.StringVar(&verifyConfiguration.catalog, "catalog", "catalog.json", "fixture catalog file")
	flags.BoolVar(&verifyConfiguration.fix, "fix", false, "repair fixable games instead of only reporting them")
	flags.BoolVar(&verifyConfiguration.debug, "debug", false, "enable debug logging")
}

func verifyMain(command *cobra.Command, arguments []string) error {
	ckmameinfo.DebugEnabled = verifyConfiguration.debug
	logging.RootLogger = &logging.Logger{}
	logger := logging.RootLogger.Sublogger("verify")

	config, err := engineconfig.Load(verifyConfiguration.config)
	if err != nil {
		return errors.Wrap(err, "unable to load engine configuration")
	}
	if err := config.EnsureValid(); err != nil {
		return errors.Wrap(err, "invalid engine configuration")
	}

	cat, err := loadFixtureCatalog(verifyConfiguration.catalog)
	if err != nil {
		return errors.Wrap(err, "unable to load catalog")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e := engine.New(config, logger)
	if err := e.Prepare(); err != nil {
		return errors.Wrap(err, "unable to prepare engine")
	}

	reports, runErr := e.Run(ctx, cat, verifyConfiguration.fix)
	if runErr != nil && runErr != engine.ErrCancelled {
		return errors.Wrap(runErr, "verification run failed")
	}

	for _, r := range reports {
		status := r.Status.String()
		if r.Repaired {
			status += " (repaired)"
		}
		fmt.Printf("%-32s %s\n", r.Game, status)
	}

	if runErr == engine.ErrCancelled {
		fmt.Printf("\ninterrupted after %d of %d games\n", len(reports), len(cat.Games()))
		return errors.New("verification cancelled")
	}

	fmt.Printf(
		"\n%d games: %d correct, %d fixable, %d partial, %d missing, %d old, %d repaired\n",
		e.Stats.Total, e.Stats.Correct+e.Stats.CorrectMia, e.Stats.Fixable,
		e.Stats.Partial, e.Stats.Missing, e.Stats.Old, e.Stats.Repaired,
	)

	if !verifyConfiguration.fix {
		for _, r := range reports {
			if r.Status != matcher.GameCorrect && r.Status != matcher.GameCorrectMia && r.Status != matcher.GameOld {
				return errors.New("one or more games are not correct (use --fix to repair)")
			}
		}
	}

	return nil
}
