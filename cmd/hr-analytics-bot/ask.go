package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/processor"
)

type askOptions struct {
	dataset string
	dataDir string
	sqlOnly bool
}

func newAskCommand() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question against a local dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.dataset, "dataset", "d", "", "dataset handle (defaults to DEFAULT_DATASET)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "data directory (defaults to DATA_DIR)")
	cmd.Flags().BoolVar(&opts.sqlOnly, "sql-only", false, "print the generated SQL without running it")

	return cmd
}

func runAsk(cmd *cobra.Command, opts *askOptions, question string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if opts.dataDir != "" {
		cfg.Dataset.DataDir = opts.dataDir
	}

	logger := newLogger(cfg, "ask").WithOutput(io.Discard)
	registry := dataset.NewRegistry(cfg.Dataset.DataDir, logger)
	defer func() { _ = registry.Close() }()

	qp := processor.NewQueryProcessor(registry, nil, nil, processor.ProcessorConfig{
		MaxResultRows:      cfg.Query.MaxResultRows,
		MaxQuestionLength:  cfg.Query.MaxQuestionLength,
		Timeout:            cfg.Query.Timeout,
		DefaultDataset:     cfg.Dataset.DefaultHandle,
		EnableSafetyChecks: cfg.Query.EnableSafetyChecks,
	})
	qp.SetLogger(logger)

	heading := color.New(color.FgCyan, color.Bold)

	if opts.sqlOnly {
		t, err := qp.Translate(ctx, question)
		if err != nil {
			return printError(out, err)
		}
		heading.Fprintf(out, "%s (%s)\n", t.Intent, t.Rule)
		fmt.Fprintln(out, t.SQL)
		return nil
	}

	resp, err := qp.ProcessQuery(ctx, &processor.QueryRequest{Text: question, DatasetPath: opts.dataset})
	if err != nil {
		return printError(out, err)
	}

	heading.Fprintf(out, "%s · %s\n", resp.Intent, resp.Dataset)
	color.New(color.Faint).Fprintln(out, resp.SQL)
	fmt.Fprintln(out)

	if len(resp.Rows) > 0 {
		printTable(out, resp.Columns, resp.Rows)
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, resp.Summary)
	if resp.Insight != "" {
		color.New(color.FgGreen).Fprintln(out, resp.Insight)
	}
	return nil
}

func printTable(out io.Writer, columns []string, rows []dataset.Row) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			if v := row[c]; v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// printError shows the error code and suggestion, then returns err so the exit status is non-zero
func printError(out io.Writer, err error) error {
	red := color.New(color.FgRed)
	if code := errors.CodeOf(err); code != "" {
		red.Fprintf(out, "[%s] ", code)
	}
	red.Fprintln(out, err.Error())

	var enhanced *errors.EnhancedError
	if stderrors.As(err, &enhanced) && enhanced.Suggestion != "" {
		color.New(color.FgYellow).Fprintln(out, enhanced.Suggestion)
	}
	return err
}
