// Package cmd implements the portquery command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/logging"
)

type contextKey string

const configContextKey contextKey = "config"

// Execute builds the root command and runs it against os.Args.
func Execute() error {
	root := &cli.Command{
		Name:  "portquery",
		Usage: "Ask questions about number-porting settlement data in plain language",
		Description: `portquery turns natural-language questions (Korean or English) about
mobile number-porting settlements into validated, read-only SQL and
optionally runs them against a local DuckDB settlement database.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db-path",
				Usage: "path to the DuckDB settlement database",
			},
			&cli.StringFlag{
				Name:  "schema-path",
				Usage: "path to a YAML or JSON schema description (default: built-in settlement schema)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "language-model provider (openai, azure, anthropic, ollama)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "language-model name",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "disable the synthesized-query cache",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}

			if err := logging.InitializeLogger(cfg.Logging); err != nil {
				return ctx, fmt.Errorf("failed to initialize logging: %w", err)
			}

			return context.WithValue(ctx, configContextKey, cfg), nil
		},
		Commands: []*cli.Command{
			AskCommand(),
			ValidateCommand(),
			SchemaCommand(),
			SeedCommand(),
			ClearCommand(),
			ConfigCommand(),
		},
	}

	return root.Run(context.Background(), os.Args)
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	overrides := map[string]interface{}{
		"db-path":     cmd.String("db-path"),
		"schema-path": cmd.String("schema-path"),
		"log-level":   cmd.String("log-level"),
		"provider":    cmd.String("provider"),
		"model":       cmd.String("model"),
		"no-cache":    cmd.Bool("no-cache"),
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.ExpandAllPaths()

	return cfg, nil
}

func getConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configContextKey).(*config.Config)
	return cfg
}

// requireConfig loads configuration directly when the command runs without
// the root command's Before hook (as in tests).
func requireConfig(ctx context.Context) (*config.Config, error) {
	if cfg := getConfigFromContext(ctx); cfg != nil {
		return cfg, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.ExpandAllPaths()

	return cfg, nil
}
