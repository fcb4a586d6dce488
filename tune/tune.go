package tune

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/garden/config"
)

// Options configures a tuning run.
type Options struct {
	Base       *config.Config // nil = embedded defaults
	Ticks      int64          // ticks per garden run
	Seeds      int            // gardens per evaluation
	MaxEvals   int
	Population int    // CMA-ES population (0 = auto)
	OutputDir  string // optimize_log.csv and best_config.yaml
	Logger     *slog.Logger
}

// Result summarizes a tuning run.
type Result struct {
	Evaluations int
	BestFitness float64
	Best        map[string]float64 // parameter name to value
	Config      *config.Config     // base config with the best values applied
}

// Run minimizes fitness over the standard parameter vector with CMA-ES. It
// logs every evaluation to <OutputDir>/optimize_log.csv and writes the best
// configuration to <OutputDir>/best_config.yaml. Cancelling ctx stops the
// search after the current evaluation; the best configuration found so far
// is still written and ctx.Err() is returned.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("tune: output directory is required")
	}
	if opts.Base == nil {
		opts.Base = config.Default()
	}
	if opts.Seeds < 1 {
		opts.Seeds = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	params := NewParamVector()
	seeds := make([]int64, opts.Seeds)
	for i := range seeds {
		seeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewEvaluator(params, opts.Ticks, seeds, opts.Base)

	logFile, err := os.Create(filepath.Join(opts.OutputDir, "optimize_log.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()
	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness", "quality"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	if err := logWriter.Write(header); err != nil {
		return nil, fmt.Errorf("writing log header: %w", err)
	}

	dim := params.Dim()
	popSize := opts.Population
	if popSize == 0 {
		popSize = 4 + int(3*math.Log(float64(dim)))
	}

	res := &Result{BestFitness: math.Inf(1)}
	var bestParams []float64
	start := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			// Values actually used after clamping
			clamped := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(ctx, clamped)
			quality := evaluator.LastQuality()
			res.Evaluations++

			if fitness < res.BestFitness {
				res.BestFitness = fitness
				bestParams = clamped
			}

			row := []string{strconv.Itoa(res.Evaluations), fmt.Sprintf("%.6f", fitness), fmt.Sprintf("%.4f", quality)}
			for _, v := range clamped {
				row = append(row, fmt.Sprintf("%.6f", v))
			}
			logWriter.Write(row)
			logWriter.Flush()

			logger.Info("evaluation",
				"eval", res.Evaluations,
				"max_evals", opts.MaxEvals,
				"fitness", fitness,
				"quality", quality,
				"best", res.BestFitness,
				"elapsed", time.Since(start).Round(time.Second).String(),
			)
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvals,
		Concurrent:      1, // Sequential evaluation; seeds already run in parallel
		Recorder:        cancelRecorder{ctx},
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logger.Info("starting CMA-ES", "params", dim, "population", popSize, "max_evals", opts.MaxEvals,
		"seeds", opts.Seeds, "ticks", opts.Ticks)

	result, minErr := optimize.Minimize(problem, params.Normalize(params.DefaultVector()), settings, method)
	if minErr != nil {
		logger.Info("optimization ended", "reason", minErr)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		bestParams = params.DefaultVector()
	}
	if err := logWriter.Error(); err != nil {
		return nil, fmt.Errorf("writing log: %w", err)
	}

	res.Best = make(map[string]float64, dim)
	for i, spec := range params.Specs {
		res.Best[spec.Name] = bestParams[i]
	}

	best := evaluator.copyConfig()
	params.ApplyToConfig(best, bestParams)
	if err := best.Refresh(); err != nil {
		return nil, err
	}
	res.Config = best
	if err := best.WriteYAML(filepath.Join(opts.OutputDir, "best_config.yaml")); err != nil {
		return nil, err
	}

	logger.Info("optimization complete",
		"evaluations", res.Evaluations,
		"best_fitness", res.BestFitness,
		"elapsed", time.Since(start).Round(time.Second).String(),
	)
	return res, ctx.Err()
}

// cancelRecorder stops the optimizer once ctx is done.
type cancelRecorder struct {
	ctx context.Context
}

func (r cancelRecorder) Init() error { return nil }

func (r cancelRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}
