package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"auditor/internal/config"
	"auditor/internal/display"
	"auditor/internal/format"
	"auditor/internal/logging"
	"auditor/internal/orchestrate"
	"auditor/internal/store"
	"auditor/internal/telemetry"
	"auditor/internal/wiring"
	"auditor/pkg/framework"
)

type auditFlags struct {
	doc         string
	adapter     string
	model       string
	outDir      string
	formats     []string
	parallel    int
	allowLocal  bool
	metricsFile string
	noArchive   bool
}

func newAuditCmd() *cobra.Command {
	var flags auditFlags
	cmd := &cobra.Command{
		Use:   "audit <repo-url|dir>",
		Short: "Audit a repository and its architecture report",
		Long: `Runs the full audit: the repository and report investigators in parallel,
then the three judges in parallel, then the chief justice.

Remote targets must be https URLs on an allowed host. Local directories are
accepted with --allow-local.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args[0], flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.doc, "doc", "", "Architecture report (pdf, md, html or txt) (required)")
	f.StringVar(&flags.adapter, "adapter", "", "Backing model: heuristic or llm")
	f.StringVar(&flags.model, "model", "", "Model name for the llm adapter")
	f.StringVarP(&flags.outDir, "out", "o", "", "Directory for written reports")
	f.StringSliceVar(&flags.formats, "format", nil, "Report formats: markdown, json, pdf, terminal")
	f.IntVar(&flags.parallel, "parallel", 0, "Max concurrent branches per stage (0 = all)")
	f.BoolVar(&flags.allowLocal, "allow-local", false, "Accept a local directory as the target")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.BoolVar(&flags.noArchive, "no-archive", false, "Do not record the run in the archive")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func runAudit(cmd *cobra.Command, target string, flags auditFlags) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, func(c *config.Config) {
		fs := cmd.Flags()
		if fs.Changed("adapter") {
			c.Adapter = flags.adapter
		}
		if fs.Changed("model") {
			c.Model = flags.model
		}
		if fs.Changed("out") {
			c.OutputDir = flags.outDir
		}
		if fs.Changed("format") {
			c.Formats = flags.formats
		}
		if fs.Changed("parallel") {
			c.Parallel = flags.parallel
		}
		if fs.Changed("allow-local") {
			c.AllowLocal = flags.allowLocal
		}
		if fs.Changed("metrics-file") {
			c.MetricsFile = flags.metricsFile
		}
	})
	if err != nil {
		return err
	}
	log := logging.New("cli")

	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, telemetry.ServiceName)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdown(ctx) }()

	model, err := wiring.NewModel(ctx, cfg)
	if err != nil {
		return err
	}
	var st store.Store
	if !flags.noArchive {
		st = openStore(ctx, cfg.DBPath)
	}
	if st != nil {
		defer st.Close()
	}

	metrics := telemetry.NewMetricsObserver()
	deps := wiring.Deps{
		Model:    model,
		Store:    st,
		Observer: framework.MultiObserver{&framework.LogObserver{Logger: logging.New("engine")}, metrics},
		Out:      cmd.OutOrStdout(),
		Logger:   log,
	}

	outcome, err := wiring.Audit(ctx, cfg, deps, target, flags.doc)
	if err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("metrics not written", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	res := outcome.Result
	if !outcome.Completed() {
		fmt.Fprintf(out, "Audit halted at %s: %s\n", display.Stage(orchestrate.StageError), res.Reason)
		fmt.Fprintf(out, "Run: %s\n", res.RunID)
		return &exitError{code: exitHalted}
	}
	printSummary(out, outcome)
	return nil
}

func printSummary(out io.Writer, outcome *wiring.Outcome) {
	res := outcome.Result
	tbl := format.NewTable(format.ASCII)
	tbl.Header("Criterion", "Score", "Dissent")
	tbl.Columns(format.ColumnConfig{Number: 1, MaxWidth: 40})
	for _, c := range res.Report.Criteria {
		tbl.Row(c.DimensionName, display.ScoreBadge(c.FinalScore), format.BoolMark(c.Dissent != ""))
	}
	fmt.Fprintln(out, tbl.String())
	fmt.Fprintf(out, "Run:     %s (%s)\n", res.RunID, format.Duration(res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)))
	fmt.Fprintf(out, "Digest:  %s\n", outcome.Artifact.Digest)
	for _, e := range outcome.Emitted {
		switch {
		case e.Err != nil:
			fmt.Fprintf(out, "Report:  %s failed: %v\n", e.Sink, e.Err)
		case e.Location != "":
			fmt.Fprintf(out, "Report:  %s\n", e.Location)
		}
	}
	fmt.Fprintf(out, "Overall Score: %s\n", format.Overall(res.Report.OverallScore))
}
