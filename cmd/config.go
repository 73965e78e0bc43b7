package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the configuration as JSON",
			},
		},
		Action: runConfig,
	}
}

func runConfig(ctx context.Context, cmd *cli.Command) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	if cmd.Bool("json") {
		// Never print credentials
		redacted := *cfg
		redacted.LLM.APIKey = ""

		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Println(string(data))

		return nil
	}

	fmt.Println("====================")
	fmt.Println("Active Configuration:")

	fmt.Println("\nDatabase:")
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Printf("  Query Timeout: %s\n", cfg.Database.QueryTimeout)
	fmt.Printf("  Max Result Rows: %d\n", cfg.Database.MaxResultRows)
	fmt.Printf("  Max Open Connections: %d\n", cfg.Database.MaxOpenConns)

	fmt.Println("\nSchema:")

	if cfg.Schema.Path != "" {
		fmt.Printf("  Path: %s\n", cfg.Schema.Path)
	} else {
		fmt.Println("  Path: (built-in settlement schema)")
	}

	fmt.Println("\nLLM:")
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Model: %s\n", cfg.LLM.Model)

	if cfg.LLM.APIKey != "" {
		fmt.Println("  API Key: (set)")
	} else {
		fmt.Println("  API Key: (not set)")
	}

	if cfg.LLM.BaseURL != "" {
		fmt.Printf("  Base URL: %s\n", cfg.LLM.BaseURL)
	}

	if cfg.LLM.Deployment != "" {
		fmt.Printf("  Deployment: %s\n", cfg.LLM.Deployment)
		fmt.Printf("  API Version: %s\n", cfg.LLM.APIVersion)
	}

	fmt.Printf("  Timeout: %s\n", cfg.LLM.Timeout)
	fmt.Printf("  Retry Attempts: %d\n", cfg.LLM.RetryAttempts)
	fmt.Printf("  Retry Delay: %s\n", cfg.LLM.RetryDelay)
	fmt.Printf("  Enable Fallback: %t\n", cfg.LLM.EnableFallback)

	fmt.Println("\nCache:")
	fmt.Printf("  Directory: %s\n", cfg.Cache.Directory)
	fmt.Printf("  TTL: %d hours\n", cfg.Cache.TTLHours)
	fmt.Printf("  Enabled: %t\n", cfg.Cache.Enabled)

	fmt.Println("\nFormatter:")
	fmt.Printf("  Page Size: %d\n", cfg.Formatter.PageSize)
	fmt.Printf("  Mask PII: %t\n", cfg.Formatter.MaskPII)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Printf("  File: %s\n", cfg.Logging.File)
	}

	return nil
}
