package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/garden/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation headless",
	Long: `Run steps the garden until --ticks is reached or the process is interrupted.

Window statistics go to <output-dir>/telemetry.csv and perf.csv, notable
moments to bookmarks.csv with a JSON snapshot each, and sealed blooms and
insights to the SQLite archive.

Example:
  garden run --seed 7 --ticks 36000 --output-dir runs/7 --archive runs/7/garden.db`,
	Args: cobra.NoArgs,
	RunE: runGarden,
}

func init() {
	f := runCmd.Flags()
	f.Int64("seed", 0, "RNG seed (0 = time-based)")
	f.Int64("ticks", 0, "stop after N ticks (0 = until interrupted)")
	f.Float64("dt", 0, "simulated seconds per tick (0 = use config)")
	f.Float64("stats-window", 0, "stats window in simulated seconds (0 = use config)")
	f.String("output-dir", "", "directory for CSV logs, config and snapshots")
	f.String("archive", "", "SQLite file for sealed blooms and insights")
	f.Bool("log-stats", false, "log window and perf stats via slog")
}

func runGarden(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	seed := v.GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e, err := engine.New(cfg, engine.Options{
		Seed:           seed,
		DT:             v.GetFloat64("dt"),
		LogStats:       v.GetBool("log-stats"),
		StatsWindowSec: v.GetFloat64("stats-window"),
		OutputDir:      v.GetString("output-dir"),
		ArchivePath:    v.GetString("archive"),
		Logger:         slog.Default(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maxTicks := v.GetInt64("ticks")
	slog.Info("starting simulation", "seed", seed, "max_ticks", maxTicks)

	runErr := e.Run(ctx, maxTicks)
	stats := e.Garden().Stats()
	slog.Info("simulation finished", "stats", stats)

	if err := e.Close(); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
