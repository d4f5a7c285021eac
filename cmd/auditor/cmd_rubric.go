package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"auditor/internal/audit"
	"auditor/internal/display"
	"auditor/internal/format"
	"auditor/internal/rubric"
)

func newRubricCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rubric [path]",
		Short: "Validate a rubric and list its dimensions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			path := cfg.Rubric
			if len(args) == 1 {
				path = args[0]
			}
			r, err := rubric.LoadFromPath(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tbl := format.NewTable(format.ASCII)
			tbl.Header("#", "ID", "Name", "Artifact", "Signals")
			tbl.Columns(format.ColumnConfig{Number: 1, Align: format.AlignRight})
			for i, d := range r.Ordered() {
				tbl.Row(i+1, d.ID, d.Name, display.Artifact(d.TargetArtifact), strings.Join(d.Signals, ", "))
			}
			fmt.Fprintln(out, tbl.String())

			counts := r.CountByTarget()
			fmt.Fprintf(out, "Rubric %s: %d dimensions (%d repository, %d report, %d diagrams)\n",
				r.Source, tbl.Len(), counts[audit.ArtifactRepo], counts[audit.ArtifactDocReport], counts[audit.ArtifactDocImages])
			return nil
		},
	}
}
