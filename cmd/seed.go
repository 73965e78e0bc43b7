package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/storage"
)

func SeedCommand() *cli.Command {
	return &cli.Command{
		Name:        "seed",
		Usage:       "Create and populate a sample settlement database",
		Description: `Create the settlement tables in the configured DuckDB database and fill them with a deterministic sample dataset of customers, settlements, fee details, and deposits. Existing rows in those tables are replaced.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runSeed(ctx)
		},
	}
}

func runSeed(ctx context.Context) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	executor, err := storage.NewExecutor(cfg.Database, cfg.QueryTimeoutDuration())
	if err != nil {
		return fmt.Errorf("failed to open settlement database: %w", err)
	}
	defer executor.Close()

	if err := executor.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}

	fmt.Printf("Seeded sample settlement data into %s\n", cfg.Database.Path)

	return nil
}
