package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/npsettle/portquery/internal/cache"
	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/formatter"
	"github.com/npsettle/portquery/internal/llm"
	"github.com/npsettle/portquery/internal/logging"
	"github.com/npsettle/portquery/internal/pipeline"
	"github.com/npsettle/portquery/internal/schema"
	"github.com/npsettle/portquery/internal/storage"
	"github.com/npsettle/portquery/internal/synth"
	"github.com/npsettle/portquery/internal/validate"
)

func AskCommand() *cli.Command {
	return &cli.Command{
		Name:        "ask",
		Usage:       "Answer a settlement question with a validated SQL query",
		Description: `Classify a natural-language question about number-porting settlements, synthesize a read-only SQL query for it, validate the query against the schema, and (when a database is available) execute it and display the results.`,
		ArgsUsage:   " <question>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-execute",
				Usage: "print the validated query without running it",
			},
			&cli.BoolFlag{
				Name:  "sql-only",
				Usage: "print only the generated SQL",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "result page to display",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "records",
				Usage: "print results one record per block instead of a table",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "read questions interactively; earlier questions are kept as session context",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := askOptions{
				Execute: !cmd.Bool("no-execute"),
				SQLOnly: cmd.Bool("sql-only"),
				Records: cmd.Bool("records"),
				Page:    int(cmd.Int("page")),
			}

			if cmd.Bool("interactive") {
				return runAskInteractive(ctx, opts)
			}

			args := cmd.Args()
			if args.Len() == 0 {
				return fmt.Errorf("expected a question, got no arguments")
			}

			question := strings.Join(args.Slice(), " ")

			return runAsk(ctx, question, opts)
		},
	}
}

type askOptions struct {
	Execute bool
	SQLOnly bool
	Records bool
	Page    int
}

func runAsk(ctx context.Context, question string, opts askOptions) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	env, err := buildPipeline(cfg, opts)
	if err != nil {
		return err
	}
	defer env.cleanup()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Generating query..."
	s.Writer = os.Stderr
	s.Start()

	resp, err := env.pipeline.Run(ctx, question)

	s.Stop()

	if err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}

	return printResponse(env.formatter, resp, opts)
}

// runAskInteractive reads questions from stdin until EOF or "exit",
// carrying earlier questions as session context for follow-ups.
func runAskInteractive(ctx context.Context, opts askOptions) error {
	cfg, err := requireConfig(ctx)
	if err != nil {
		return err
	}

	env, err := buildPipeline(cfg, opts)
	if err != nil {
		return err
	}
	defer env.cleanup()

	fmt.Println("Ask about number-porting settlements. Type \"exit\" to quit.")

	var history []string

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		if question == "exit" || question == "quit" {
			break
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Generating query..."
		s.Writer = os.Stderr
		s.Start()

		resp, err := env.pipeline.Run(ctx, question, history...)

		s.Stop()

		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		// printResponse returns an error for rejected queries; in
		// interactive mode that is just the answer to this question
		_ = printResponse(env.formatter, resp, opts)

		if resp.SQL != "" {
			history = append(history, question)
		}
	}

	return scanner.Err()
}

// pipelineEnv bundles the assembled pipeline with the collaborators the
// command needs after Run returns.
type pipelineEnv struct {
	pipeline  *pipeline.Pipeline
	formatter *formatter.Formatter
	cleanup   func()
}

// buildPipeline assembles the question-answering pipeline from
// configuration. The cleanup function closes the executor's database handle
// when one was opened.
func buildPipeline(cfg *config.Config, opts askOptions) (*pipelineEnv, error) {
	registry, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema description: %w", err)
	}

	logger := logging.GetLogger()
	if logger == nil {
		logging.SetupFallbackLogger()
		logger = logging.GetLogger()
	}

	manager, err := llm.NewManagerFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure language-model service: %w", err)
	}

	f := formatter.New(registry, cfg.Formatter)

	popts := pipeline.Options{
		Registry:    registry,
		Synthesizer: synth.New(registry, manager, logger),
		Validator:   validate.New(registry),
		Formatter:   f,
		Page:        opts.Page,
		Logger:      logger,
	}

	cleanup := func() {}

	if opts.Execute {
		executor, err := storage.NewExecutor(cfg.Database, cfg.QueryTimeoutDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to open settlement database: %w", err)
		}

		popts.Executor = executor
		cleanup = func() {
			if closeErr := executor.Close(); closeErr != nil {
				logger.ErrorWithErr("failed to close database", closeErr)
			}
		}
	}

	if cfg.Cache.Enabled {
		files, err := cache.NewFileCache(
			cfg.Cache.Directory,
			time.Duration(cfg.Cache.TTLHours)*time.Hour,
		)
		if err != nil {
			// Caching is an optimization; a broken cache directory should
			// not block answering the question.
			logger.ErrorWithErr("failed to open query cache, continuing without it", err)
		} else {
			popts.Queries = cache.NewQueryCache(files)
		}
	}

	return &pipelineEnv{
		pipeline:  pipeline.New(popts),
		formatter: f,
		cleanup:   cleanup,
	}, nil
}

func printResponse(f *formatter.Formatter, resp *pipeline.Response, opts askOptions) error {
	if resp.Clarification != "" {
		fmt.Println(resp.Clarification)
		return nil
	}

	if resp.Rejected {
		fmt.Printf("Query rejected: %s\n", resp.RejectReason)

		if resp.Offending != "" {
			fmt.Printf("Offending fragment: %s\n", resp.Offending)
		}

		return fmt.Errorf("could not produce a valid query for this question")
	}

	if opts.SQLOnly {
		fmt.Println(resp.SQL)
		return nil
	}

	fmt.Printf("Question type: %s\n", resp.Intent.Kind)
	fmt.Printf("\nSQL:\n%s\n", resp.SQL)

	if resp.Explanation != "" {
		fmt.Printf("\nExplanation: %s\n", resp.Explanation)
	}

	fmt.Printf("Confidence: %.2f", resp.Confidence)

	if resp.FromCache {
		fmt.Print(" (cached)")
	}

	fmt.Println()

	if resp.ExecutionErr != "" {
		fmt.Printf("\nExecution failed: %s\n", resp.ExecutionErr)
		return nil
	}

	if resp.Executed && resp.Results != nil {
		fmt.Printf("\n%d rows in %s\n", resp.RowCount, resp.Duration.Round(time.Millisecond))

		if resp.RowCount > 0 {
			if opts.Records {
				fmt.Print(f.RenderRecords(*resp.Results))
			} else {
				fmt.Print(f.Render(*resp.Results))
			}
		}
	}

	return nil
}
