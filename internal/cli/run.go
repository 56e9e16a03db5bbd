package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/engine"
	"github.com/roach88/beanplan/internal/plan"
	"github.com/roach88/beanplan/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Model    string
	Database string
	Dataset  string
	Touch    []string

	// IDGenerator allows overriding the execution id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.ExecutionIDGenerator
}

// RunOutput is the result of one query run.
type RunOutput struct {
	ExecutionID string            `json:"execution_id"`
	Beans       []map[string]any  `json:"beans"`
	HasMore     bool              `json:"has_more"`
	Statements  []StatementOutput `json:"statements"`
	Plans       []PlanStatsOutput `json:"plans"`
}

// PlanStatsOutput reports the execution statistics of one cached plan.
type PlanStatsOutput struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Count int64  `json:"count"`
	Rows  int64  `json:"rows"`
}

// StatementOutput describes one executed statement.
type StatementOutput struct {
	Seq  int64  `json:"seq"`
	Path string `json:"path"`
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
	Rows int    `json:"rows"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query-file>",
		Short: "Run a query against a SQLite database",
		Long: `Run a query and print the loaded object graph.

The query runs as one execution: the primary statement, then the secondary
queries of query joins. Each --touch path is then read on every root, which
loads lazy associations in batches. Every statement is listed.

Example:
  beanplan run --db ./shop.db --model ./model.cue customers.yaml
  beanplan run --dataset ./dataset.yaml customers.yaml --touch contacts`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "CUE model file or directory (default: config model)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config database)")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "YAML dataset seeded before the query (default: config dataset)")
	cmd.Flags().StringSliceVar(&opts.Touch, "touch", nil, "dot path read on every root after the query (repeatable)")

	return cmd
}

func runQuery(opts *RunOptions, queryFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, reg, q, err := queryInputs(opts.RootOptions, opts.Model, queryFile)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Dataset != "" {
		cfg.Dataset = opts.Dataset
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if cfg.Dataset != "" {
		ds, err := store.LoadDatasetFile(cfg.Dataset)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read dataset", err)
		}
		if err := st.LoadDataset(ctx, ds); err != nil {
			return WrapExitError(ExitCommandError, "failed to load dataset", err)
		}
		slog.Info("dataset loaded", "path", cfg.Dataset, "tables", len(ds.Tables))
	}

	engineOpts := []engine.EngineOption{engine.WithConfig(cfg), engine.WithLogger(slog.Default())}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng, err := engine.New(reg, st, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	x := eng.Begin()
	res, err := x.FindList(ctx, q)
	if err == nil {
		for _, path := range opts.Touch {
			if err = engine.Touch(ctx, res.Beans, path); err != nil {
				break
			}
		}
	}

	out := RunOutput{
		ExecutionID: x.ID,
		Beans:       []map[string]any{},
		Statements:  statementOutputs(x.Trace()),
		Plans:       planStatsOutputs(eng.Cache().Plans()),
	}
	if res != nil {
		out.Beans = bean.SnapshotAll(res.Beans)
		out.HasMore = res.HasMore
	}
	slog.Info("query finished",
		"execution", x.ID,
		"type", q.Type,
		"beans", len(out.Beans),
		"statements", len(out.Statements))
	cs := eng.Cache().Stats()
	slog.Debug("plan cache", "plans", cs.Size, "hits", cs.Hits, "misses", cs.Misses)

	if err != nil {
		return outputRunError(formatter, out, err)
	}
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: out, ExecutionID: out.ExecutionID})
	}
	return outputRunText(formatter, out)
}

func statementOutputs(trace []engine.TraceEntry) []StatementOutput {
	out := make([]StatementOutput, len(trace))
	for i, te := range trace {
		out[i] = StatementOutput{Seq: te.Seq, Path: te.Path, SQL: te.SQL, Args: te.Args, Rows: te.Rows}
	}
	return out
}

func planStatsOutputs(plans []*plan.QueryPlan) []PlanStatsOutput {
	out := make([]PlanStatsOutput, len(plans))
	for i, p := range plans {
		snap := p.Stats().Snapshot()
		out[i] = PlanStatsOutput{Key: string(p.Key), Type: p.Type, Count: snap.Count, Rows: snap.Rows}
	}
	return out
}

func outputRunError(formatter *OutputFormatter, out RunOutput, err error) error {
	failure := WrapExitError(ExitFailure, "query failed", err)
	if formatter.JSON() {
		if encErr := formatter.Encode(CLIResponse{
			Status:      "error",
			Data:        out,
			Error:       &CLIError{Code: ErrCodeExecFailed, Message: err.Error()},
			ExecutionID: out.ExecutionID,
		}); encErr != nil {
			return encErr
		}
		return failure
	}
	_ = formatter.Error(ErrCodeExecFailed, err.Error(), nil)
	printStatements(formatter, out.Statements)
	return failure
}

func outputRunText(formatter *OutputFormatter, out RunOutput) error {
	w := formatter.Writer
	suffix := ""
	if out.HasMore {
		suffix = ", more available"
	}
	formatter.Pass("%d bean(s)%s [%s]", len(out.Beans), suffix, out.ExecutionID)
	fmt.Fprintln(w)

	for _, b := range out.Beans {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	printStatements(formatter, out.Statements)

	fmt.Fprintf(w, "\nPlans (%d):\n", len(out.Plans))
	for _, p := range out.Plans {
		fmt.Fprintf(w, "  %s %s: %d execution(s), %d row(s)\n", p.Key[:12], p.Type, p.Count, p.Rows)
	}
	return nil
}

func printStatements(formatter *OutputFormatter, statements []StatementOutput) {
	w := formatter.Writer
	fmt.Fprintf(w, "\nStatements (%d):\n", len(statements))
	for _, s := range statements {
		path := s.Path
		if path == "" {
			path = "(primary)"
		}
		fmt.Fprintf(w, "  [%d] %s: %s %v → %d row(s)\n", s.Seq, path, s.SQL, s.Args, s.Rows)
	}
}
