// Package engine hosts a garden: it advances the climate and the garden each
// tick and routes events and window statistics to telemetry, CSV output and
// the sealed archive.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/garden/archive"
	"github.com/pthm-cable/garden/climate"
	"github.com/pthm-cable/garden/config"
	"github.com/pthm-cable/garden/garden"
	"github.com/pthm-cable/garden/telemetry"
)

// bookmarkHistory is the number of windows the bookmark detector looks back over.
const bookmarkHistory = 10

// Options configures an Engine.
type Options struct {
	Seed           int64
	DT             float64 // simulated seconds per tick (0 = config physics.dt)
	LogStats       bool    // log each window via slog
	StatsWindowSec float64 // 0 = config telemetry.stats_window
	OutputDir      string  // CSV, config and snapshot output (empty = disabled)
	ArchivePath    string  // SQLite archive of sealed blooms (empty = disabled)
	Logger         *slog.Logger

	// Sink receives every garden event after the built-in consumers.
	Sink telemetry.Sink
	// StatsCallback is called with every flushed window.
	StatsCallback func(telemetry.WindowStats)
}

// Engine owns a garden and its host-side collaborators.
type Engine struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger
	dt     float64

	garden    *garden.Garden
	climate   climate.Climate
	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	bookmarks *telemetry.BookmarkDetector
	output    *telemetry.OutputManager
	archive   *archive.Archive
}

// New builds an engine from cfg. A nil cfg uses the embedded defaults.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		dt:        cfg.Physics.DT,
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks: telemetry.NewBookmarkDetector(bookmarkHistory),
	}
	if opts.DT > 0 {
		e.dt = opts.DT
	}

	window := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		window = opts.StatsWindowSec
	}
	e.collector = telemetry.NewCollector(window)

	var err error
	if e.climate, err = climate.New(cfg.Climate, opts.Seed); err != nil {
		return nil, fmt.Errorf("building climate: %w", err)
	}

	if e.output, err = telemetry.NewOutputManager(opts.OutputDir); err != nil {
		return nil, err
	}
	if err := e.output.WriteConfig(cfg); err != nil {
		e.output.Close()
		return nil, err
	}

	sinks := telemetry.MultiSink{e.collector}
	if opts.ArchivePath != "" {
		if e.archive, err = archive.Open(opts.ArchivePath, logger); err != nil {
			e.output.Close()
			return nil, err
		}
		sinks = append(sinks, e.archive)
	}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	e.garden = garden.New(cfg, rand.New(rand.NewSource(opts.Seed)),
		garden.WithClimate(e.climate),
		garden.WithSink(sinks),
		garden.WithLogger(logger),
		garden.WithPhaseTimer(e.perf),
	)

	logger.Info("engine ready",
		"seed", opts.Seed,
		"dt", e.dt,
		"stats_window", window,
		"climate", cfg.Climate.Kind,
		"output_dir", opts.OutputDir,
		"archive", opts.ArchivePath,
	)
	return e, nil
}

// Garden returns the hosted garden.
func (e *Engine) Garden() *garden.Garden {
	return e.garden
}

// Archive returns the sealed archive, or nil when disabled.
func (e *Engine) Archive() *archive.Archive {
	return e.archive
}

// Step advances the climate and the garden by one tick and flushes telemetry
// when a window completes.
func (e *Engine) Step() {
	e.perf.StartTick()
	e.climate.Advance(e.dt)
	e.garden.Tick(e.dt)

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	e.flushTelemetry()
	e.perf.EndTick(e.garden.Len())
}

// Run steps until ctx is cancelled or maxTicks ticks have run (0 = unlimited).
// It returns ctx.Err() on cancellation and nil on reaching the limit.
func (e *Engine) Run(ctx context.Context, maxTicks int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxTicks > 0 && e.garden.TickCount() >= maxTicks {
			e.logger.Info("max ticks reached", "tick", e.garden.TickCount())
			return nil
		}
		e.Step()
	}
}

// Close releases the output files and the archive.
func (e *Engine) Close() error {
	var errs []error
	if err := e.output.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (e *Engine) flushTelemetry() {
	now := e.garden.Now()
	if !e.collector.ShouldFlush(now) {
		return
	}

	stats := e.collector.Flush(e.garden.TickCount(), now, e.garden.Sample())
	perfStats := e.perf.Stats()

	if e.opts.StatsCallback != nil {
		e.opts.StatsCallback(stats)
	}

	if e.opts.LogStats {
		stats.LogStats(e.logger)
		perfStats.LogStats(e.logger)
	}

	if err := e.output.WriteTelemetry(stats); err != nil {
		e.logger.Error("failed to write telemetry", "error", err)
	}
	if err := e.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		e.logger.Error("failed to write perf", "error", err)
	}

	for _, bm := range e.bookmarks.Check(stats) {
		if e.opts.LogStats {
			bm.LogBookmark(e.logger)
		}
		if err := e.output.WriteBookmark(bm); err != nil {
			e.logger.Error("failed to write bookmark", "error", err)
		}
		if dir := e.output.SnapshotDir(); dir != "" {
			e.saveSnapshot(dir, &bm)
		}
	}
}

// saveSnapshot writes the garden state alongside a bookmark.
func (e *Engine) saveSnapshot(dir string, bm *telemetry.Bookmark) {
	snap := e.garden.Snapshot(e.opts.Seed)
	snap.Bookmark = bm

	path, err := telemetry.SaveSnapshot(snap, dir)
	if err != nil {
		e.logger.Error("failed to save snapshot", "error", err)
		return
	}
	e.logger.Info("snapshot saved", "path", path, "tick", snap.Tick)
}
