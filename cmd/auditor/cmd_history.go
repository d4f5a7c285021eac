package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"auditor/internal/display"
	"auditor/internal/format"
	"auditor/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		target string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List archived runs, or show one run's verdicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run:     %s\n", run.ID)
				fmt.Fprintf(out, "Target:  %s\n", run.Target)
				fmt.Fprintf(out, "Status:  %s\n", run.Status)
				fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
				if run.Status == store.StatusHalted {
					fmt.Fprintf(out, "Reason:  %s\n", run.Reason)
					return nil
				}
				fmt.Fprintf(out, "Digest:  %s\n", run.Digest)
				tbl := format.NewTable(format.ASCII)
				tbl.Header("Criterion", "Score", "Rating", "Remediation")
				tbl.Columns(format.ColumnConfig{Number: 4, MaxWidth: 60})
				for _, v := range run.Verdicts {
					tbl.Row(v.DimensionName, format.Score(v.FinalScore), display.ScoreLabel(v.FinalScore), format.Truncate(format.OneLine(v.Remediation), 120))
				}
				fmt.Fprintln(out, tbl.String())
				fmt.Fprintf(out, "Overall Score: %s\n", format.Overall(run.OverallScore))
				return nil
			}

			runs, err := st.ListRuns(ctx, store.Filter{Target: target, Status: store.Status(status), Limit: limit})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No archived runs.")
				return nil
			}
			tbl := format.NewTable(format.ASCII)
			tbl.Header("Run", "Started", "Target", "Status", "Overall", "Duration")
			tbl.Columns(format.ColumnConfig{Number: 3, MaxWidth: 50})
			for _, r := range runs {
				overall := "-"
				if r.Status == store.StatusCompleted {
					overall = format.Overall(r.OverallScore)
				}
				tbl.Row(r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Target, string(r.Status), overall, format.Duration(r.FinishedAt.Sub(r.StartedAt)))
			}
			fmt.Fprintln(out, tbl.String())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&target, "target", "", "Only runs for this target")
	f.StringVar(&status, "status", "", "Only runs with this status (completed, halted)")
	f.IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	return cmd
}
