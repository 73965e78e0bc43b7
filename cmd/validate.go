package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/schema"
	"github.com/npsettle/portquery/internal/validate"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Usage:       "Check a SQL query against the settlement schema",
		Description: `Statically validate a SQL query without executing it: the query must be read-only, reference only known tables and columns, and join only along declared foreign keys.`,
		ArgsUsage:   " <sql>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "read the query from a file instead of the arguments",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := queryFromInput(cmd)
			if err != nil {
				return err
			}

			return runValidate(ctx, query)
		},
	}
}

func queryFromInput(cmd *cli.Command) (string, error) {
	if file := cmd.String("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}

		return string(data), nil
	}

	args := cmd.Args()
	if args.Len() == 0 {
		return "", fmt.Errorf("expected a SQL query or --file")
	}

	return strings.Join(args.Slice(), " "), nil
}

func runValidate(ctx context.Context, query string) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	registry, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("failed to load schema description: %w", err)
	}

	result := validate.New(registry).Check(query)

	if result.Accepted {
		fmt.Println("Query accepted")
		return nil
	}

	fmt.Printf("Query rejected: %s\n", result.Reason)

	if result.Offending != "" {
		fmt.Printf("Offending fragment: %s\n", result.Offending)
	}

	return fmt.Errorf("query failed validation")
}
