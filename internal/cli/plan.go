package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/beanplan/internal/config"
	"github.com/roach88/beanplan/internal/engine"
	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Model   string
	Dialect string
}

// PlanOutput describes a query plan.
type PlanOutput struct {
	Key      string           `json:"key"`
	Type     string           `json:"type"`
	Dialect  string           `json:"dialect"`
	SQL      string           `json:"sql"`
	Columns  []string         `json:"columns"`
	Args     []any            `json:"args"`
	Paged    bool             `json:"paged"`
	Distinct bool             `json:"distinct"`
	Deferred []DeferredOutput `json:"deferred,omitempty"`
}

// DeferredOutput describes one path loaded by a secondary query.
type DeferredOutput struct {
	Path      string `json:"path"`
	Mode      string `json:"mode"`
	Target    string `json:"target"`
	BatchSize int    `json:"batch_size"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <query-file>",
		Short: "Show the SQL plan of a query",
		Long: `Plan a query without running it.

Prints the plan key, the rendered SQL with its bind arguments and the paths
deferred to secondary queries or lazy loading.

Example:
  beanplan plan --model ./model.cue customers.yaml
  beanplan plan --dialect postgres customers.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "CUE model file or directory (default: config model)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect: sqlite, postgres, ansi, rownumber (default: config dialect)")

	return cmd
}

// queryInputs loads the configuration, the model and the query file shared
// by plan and run.
func queryInputs(rootOpts *RootOptions, modelFlag, queryFile string) (*config.Config, *meta.Registry, *queryir.Query, error) {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	modelPath := cfg.Model
	if modelFlag != "" {
		modelPath = modelFlag
	}

	slog.Debug("loading model", "path", modelPath)
	reg, loaded, err := loadRegistry(modelPath)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.Debug("model loaded", "entities", len(loaded.Descriptors))

	q, err := queryir.LoadFile(queryFile)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to load query", err)
	}
	return cfg, reg, q, nil
}

func runPlan(opts *PlanOptions, queryFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, reg, q, err := queryInputs(opts.RootOptions, opts.Model, queryFile)
	if err != nil {
		return err
	}
	if opts.Dialect != "" {
		cfg.Dialect = opts.Dialect
	}

	eng, err := engine.New(reg, nil, engine.WithConfig(cfg), engine.WithLogger(slog.Default()))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	p, err := eng.Plan(q)
	if err != nil {
		_ = formatter.Error(ErrCodeQueryFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "planning failed", err)
	}
	slog.Debug("query planned", "type", p.Type, "key", string(p.Key))

	out := PlanOutput{
		Key:      string(p.Key),
		Type:     p.Type,
		Dialect:  eng.Dialect().Name(),
		SQL:      p.SQL,
		Columns:  p.Columns,
		Args:     p.Args(q, nil),
		Paged:    p.Paged,
		Distinct: p.Distinct,
	}
	for _, d := range p.Tree.Deferred {
		out.Deferred = append(out.Deferred, DeferredOutput{
			Path:      d.Path,
			Mode:      d.Mode.String(),
			Target:    d.Target.Name,
			BatchSize: effectiveBatchSize(cfg, d.Mode, d.BatchSize),
		})
	}

	if formatter.JSON() {
		return formatter.Success(out)
	}
	printPlan(formatter, out)
	return nil
}

// effectiveBatchSize applies the configured default for a join without an
// explicit batch size.
func effectiveBatchSize(cfg *config.Config, mode queryir.FetchMode, size int) int {
	if size > 0 {
		return size
	}
	if mode == queryir.FetchLazy {
		return cfg.LazyBatchSize
	}
	return cfg.DefaultBatchSize
}

func printPlan(formatter *OutputFormatter, out PlanOutput) {
	w := formatter.Writer
	fmt.Fprintf(w, "Plan %s (%s, %s)\n\n", out.Key[:12], out.Type, out.Dialect)
	fmt.Fprintf(w, "  %s\n\n", out.SQL)
	fmt.Fprintf(w, "Args:     %v\n", out.Args)
	fmt.Fprintf(w, "Columns:  %d\n", len(out.Columns))
	if out.Paged {
		fmt.Fprintln(w, "Paged:    yes")
	}
	if out.Distinct {
		fmt.Fprintln(w, "Distinct: yes")
	}
	if len(out.Deferred) == 0 {
		return
	}
	fmt.Fprintln(w, "\nDeferred:")
	for _, d := range out.Deferred {
		fmt.Fprintf(w, "  %s → %s (%s, batch %d)\n", d.Path, d.Target, d.Mode, d.BatchSize)
	}
}
