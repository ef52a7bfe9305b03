package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run transition detection over the loaded corpus",
	Long: `Runs one full detection pass: resolves vendor identities, builds IDV
chains, generates candidate award/contract pairs inside the transition
window, scores each pair, and emits detections at or above the
configured confidence thresholds.

Examples:
  # Run with defaults from config
  transition-cli detect

  # Run with more workers and JSON outcome dump
  transition-cli detect --workers 8 --json`,
	RunE: runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.Int("workers", 0, "concurrent award workers (overrides config)")
	f.Bool("json", false, "print per-award outcomes as JSON")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	dcfg := cfg.Detect
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		dcfg.Workers = workers
	}

	result, err := detect.NewOrchestrator(dcfg, st).Run(ctx)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("run %s: %d emitted, %d skipped, %d failed (%s)\n",
		result.RunID, result.Emitted, result.Skipped, result.Failed,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, flag := range result.ChainFlags {
		zap.L().Warn("detect: chain flagged", zap.String("flag", flag))
	}
	return nil
}
