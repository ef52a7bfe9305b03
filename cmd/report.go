package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/report"
	"github.com/sells-group/transition-cli/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize emitted detections",
	Long: `Aggregates detections by vendor, awarding agency, and federal fiscal
year, and writes the summary as a table, CSV, or XLSX workbook.

Examples:
  # Print the summary table for the latest data
  transition-cli report

  # Export one run's high-confidence detections to CSV
  transition-cli report --run 4f6c... --confidence high_confidence --format csv --output transitions.csv`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.String("run", "", "restrict to one run id")
	f.String("confidence", "", "restrict to one tier (high_confidence, likely_transition)")
	f.Float64("min-score", 0, "minimum blended score")
	f.Int("limit", 0, "maximum detections to read (0 = all)")
	f.String("format", "", "output format: table, csv, xlsx (overrides config)")
	f.String("output", "", "output path (overrides config; stdout for table/csv)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run")
	confidence, _ := cmd.Flags().GetString("confidence")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	limit, _ := cmd.Flags().GetInt("limit")

	detections, err := st.ListDetections(ctx, store.DetectionFilter{
		RunID:      runID,
		Confidence: model.Confidence(confidence),
		MinScore:   minScore,
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	if len(detections) == 0 {
		fmt.Fprintln(os.Stderr, "No detections found.")
		return nil
	}

	awards, err := st.LoadAwards(ctx)
	if err != nil {
		return err
	}
	rows := report.Summarize(detections, awards)

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Report.Format
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.Report.Output
	}

	switch format {
	case "", "table":
		return writeTable(os.Stdout, rows)
	case "csv":
		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrap(err, "report: create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return report.WriteCSV(out, rows)
	case "xlsx":
		if output == "" {
			output = "transitions.xlsx"
		}
		return report.WriteXLSX(output, rows)
	default:
		return eris.Errorf("unsupported report format: %s", format)
	}
}

func writeTable(w *os.File, rows []report.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tAGENCY\tFY\tCOUNT\tHIGH\tLIKELY\tMEAN")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.3f\n",
			r.VendorID, r.Agency, r.FiscalYear, r.Detections, r.HighCount, r.LikelyCount, r.MeanScore)
	}
	return tw.Flush()
}
