package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/garden/tune"
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search garden parameters with CMA-ES",
	Long: `Tune runs headless gardens over several seeds per evaluation and uses
CMA-ES to find parameters that seal many blooms while keeping a steady,
healthy population. Every evaluation is logged to <output-dir>/optimize_log.csv
and the best configuration is written to <output-dir>/best_config.yaml.

Example:
  garden tune --output-dir runs/tune --max-evals 200 --seeds 3`,
	Args: cobra.NoArgs,
	RunE: runTune,
}

func init() {
	f := tuneCmd.Flags()
	f.String("output-dir", "", "directory for the evaluation log and best config")
	f.Int64("ticks", 3600, "ticks per garden run")
	f.Int("seeds", 3, "gardens per evaluation")
	f.Int("max-evals", 200, "maximum number of evaluations")
	f.Int("population", 0, "CMA-ES population size (0 = auto)")
}

func runTune(cmd *cobra.Command, args []string) error {
	outputDir := v.GetString("output-dir")
	if outputDir == "" {
		return errors.New("--output-dir is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := tune.Run(ctx, tune.Options{
		Base:       cfg,
		Ticks:      v.GetInt64("ticks"),
		Seeds:      v.GetInt("seeds"),
		MaxEvals:   v.GetInt("max-evals"),
		Population: v.GetInt("population"),
		OutputDir:  outputDir,
		Logger:     slog.Default(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "best fitness %.3f after %d evaluations\n", res.BestFitness, res.Evaluations)
	names := make([]string, 0, len(res.Best))
	for name := range res.Best {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %.6f\n", name, res.Best[name])
	}
	return nil
}
