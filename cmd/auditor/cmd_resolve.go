package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"auditor/internal/display"
	"auditor/internal/format"
	"auditor/internal/wiring"
)

func newResolveCmd() *cobra.Command {
	var (
		file    string
		asJSON  bool
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve collected opinions and evidence into verdicts",
		Long: `Reads a JSON document {"target", "dimensions", "opinions", "evidence"} and
applies the chief justice rules. Nothing is cloned and no judge is called.
Use "-f -" to read from stdin. Without "dimensions" the configured rubric
is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				fh, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer fh.Close()
				r = fh
			}
			req, err := wiring.DecodeResolveRequest(r)
			if err != nil {
				return err
			}
			res, err := wiring.Resolve(cfg, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Report)
			}
			tbl := format.NewTable(format.ASCII)
			tbl.Header("Criterion", "Score", "Rating", "Dissent")
			for _, c := range res.Report.Criteria {
				tbl.Row(c.DimensionName, format.Score(c.FinalScore), display.ScoreLabel(c.FinalScore), format.BoolMark(c.Dissent != ""))
			}
			fmt.Fprintln(out, tbl.String())
			if explain {
				for _, ru := range res.Rulings {
					fmt.Fprintf(out, "%s: baseline %d, spread %d, weighted=%t, security_capped=%t, evidence_overruled=%t, dropped=%d\n",
						ru.DimensionID, ru.Baseline, ru.Spread, ru.Weighted, ru.SecurityCapped, ru.EvidenceOverruled, len(ru.Dropped))
				}
			}
			for _, id := range res.Omitted {
				fmt.Fprintf(out, "No opinions: %s\n", id)
			}
			fmt.Fprintf(out, "Overall Score: %s\n", format.Overall(res.Report.OverallScore))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "-", "Input JSON file, or - for stdin")
	f.BoolVar(&asJSON, "json", false, "Print the final report as JSON")
	f.BoolVar(&explain, "explain", false, "Print how each criterion was resolved")
	return cmd
}
