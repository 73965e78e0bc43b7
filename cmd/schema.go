package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/schema"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:        "schema",
		Usage:       "Display the active schema description",
		Description: `Show the tables, columns, and foreign keys of the schema description used for query synthesis and validation. With --check, validate a schema file without making it active.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "check",
				Usage: "validate the given schema file and exit",
			},
			&cli.BoolFlag{
				Name:  "fingerprint",
				Usage: "print only the schema fingerprint",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path := cmd.String("check"); path != "" {
				return runSchemaCheck(path)
			}

			return runSchema(ctx, cmd.Bool("fingerprint"))
		},
	}
}

func runSchemaCheck(path string) error {
	if _, err := schema.Load(path); err != nil {
		return fmt.Errorf("schema description is invalid: %w", err)
	}

	fmt.Printf("Schema description %s is valid\n", path)

	return nil
}

func runSchema(ctx context.Context, fingerprintOnly bool) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	registry, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("failed to load schema description: %w", err)
	}

	if fingerprintOnly {
		fmt.Println(registry.Fingerprint())
		return nil
	}

	source := cfg.Schema.Path
	if source == "" {
		source = "built-in settlement schema"
	}

	fmt.Printf("Schema: %s\n", source)
	fmt.Printf("Fingerprint: %s\n\n", registry.Fingerprint())

	desc := registry.Snapshot()

	for _, name := range registry.Tables() {
		tbl := desc[name]

		fmt.Printf("%s - %s\n", name, tbl.Description)

		cols := make([]string, 0, len(tbl.Columns))
		for col := range tbl.Columns {
			cols = append(cols, col)
		}

		sort.Strings(cols)

		for _, col := range cols {
			c := tbl.Columns[col]

			notes := []string{}
			if col == tbl.PrimaryKey {
				notes = append(notes, "primary key")
			}

			if target, ok := tbl.ForeignKeys[col]; ok {
				notes = append(notes, "-> "+target)
			}

			if c.Sensitive {
				notes = append(notes, "sensitive")
			}

			line := fmt.Sprintf("  %-18s %-10s %s", col, c.Type, c.Description)
			if len(notes) > 0 {
				line += " (" + strings.Join(notes, ", ") + ")"
			}

			fmt.Println(line)
		}

		fmt.Println()
	}

	return nil
}
