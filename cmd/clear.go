package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/cache"
)

func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:        "clear",
		Usage:       "Clear the synthesized-query cache",
		Description: `Remove cached query synthesis results from the cache directory. With --expired, only entries past their TTL are removed.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "expired",
				Usage: "Remove only expired entries",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runClear(ctx, cmd.Bool("expired"))
		},
	}
}

func runClear(ctx context.Context, expiredOnly bool) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	files, err := cache.NewFileCache(
		cfg.Cache.Directory,
		time.Duration(cfg.Cache.TTLHours)*time.Hour,
	)
	if err != nil {
		return fmt.Errorf("failed to open cache directory: %w", err)
	}

	if expiredOnly {
		if err := files.Cleanup(ctx); err != nil {
			return fmt.Errorf("failed to clean up expired cache entries: %w", err)
		}

		fmt.Printf("Removed expired cache entries from %s\n", cfg.Cache.Directory)

		return nil
	}

	if err := files.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Printf("Cleared query cache at %s\n", cfg.Cache.Directory)

	return nil
}
