// Package bench runs the fixed regression roster through nested
// cross-validation on a loaded survey table and bundles the results into
// a serializable report.
//
// Every algorithm sees the same outer fold assignment, so their mean
// train MSE, mean test MSE and min test MSE columns are directly
// comparable. Hyperparameter-searching models pick their setting on
// inner folds carved from each outer training partition before the
// refit; the report records the per-fold selections alongside the
// errors.
package bench

import (
	"time"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/crossval"
	"github.com/soundmind-ml/soundmind/dataset"
	"github.com/soundmind-ml/soundmind/ensemble"
	"github.com/soundmind-ml/soundmind/linear"
	"github.com/soundmind-ml/soundmind/metrics"
	"github.com/soundmind-ml/soundmind/neighbors"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/tree"
)

// Config collects every knob of one benchmark run. The CLI populates it
// from flags; tests build it directly.
type Config struct {
	// DataPath locates the survey CSV export.
	DataPath string
	// Target selects the response the table is loaded with.
	Target dataset.TargetMode
	// IncludeStreamingService expands the streaming service column into
	// indicator features instead of dropping it.
	IncludeStreamingService bool
	// Strict turns unrecognized categorical levels into a load failure
	// instead of a dropped row.
	Strict bool

	// OuterK is the outer fold count shared by every algorithm.
	OuterK int
	// InnerK is the inner fold count used for hyperparameter selection.
	InnerK int
	// Seed drives the outer assignment and every derived inner split.
	Seed int64

	// SubsetStrategy and SubsetCriterion configure the subset-selection
	// entry of the roster.
	SubsetStrategy  linear.SubsetStrategy
	SubsetCriterion metrics.Criterion

	// LassoGridSize and LassoEpsilon bound the lambda grid: GridSize
	// candidates descending geometrically from lambda_max to
	// Epsilon*lambda_max.
	LassoGridSize int
	LassoEpsilon  float64

	// OutPath receives the JSON report; empty writes no file.
	OutPath string
}

// DefaultConfig returns the settings of the published analysis: 10 outer
// and 10 inner folds at seed 42 on the composite target, forward subset
// search under BIC, and the lasso package's own grid bounds.
func DefaultConfig() Config {
	return Config{
		Target:          dataset.TargetComposite,
		OuterK:          10,
		InnerK:          10,
		Seed:            42,
		SubsetStrategy:  linear.StrategyForward,
		SubsetCriterion: metrics.CriterionBIC,
		LassoGridSize:   100,
		LassoEpsilon:    1e-3,
	}
}

// Validate checks every field and names the offender in the error.
func (c Config) Validate() error {
	if c.DataPath == "" {
		return smErrors.NewValidationError("data_path", "must not be empty", c.DataPath)
	}
	if c.Target.String() == "unknown" {
		return smErrors.NewValidationError("target", "unknown target mode", int(c.Target))
	}
	if c.OuterK < 2 {
		return smErrors.NewValidationError("outer_k", "needs at least 2 folds", c.OuterK)
	}
	if c.InnerK < 2 {
		return smErrors.NewValidationError("inner_k", "needs at least 2 folds", c.InnerK)
	}
	if c.SubsetStrategy.String() == "unknown" {
		return smErrors.NewValidationError("subset_strategy", "unknown strategy", int(c.SubsetStrategy))
	}
	if c.SubsetCriterion.String() == "unknown" {
		return smErrors.NewValidationError("subset_criterion", "unknown criterion", int(c.SubsetCriterion))
	}
	if c.LassoGridSize < 1 {
		return smErrors.NewValidationError("lasso_grid_size", "needs at least 1 candidate", c.LassoGridSize)
	}
	if c.LassoEpsilon <= 0 || c.LassoEpsilon >= 1 {
		return smErrors.NewValidationError("lasso_epsilon", "must be in (0, 1)", c.LassoEpsilon)
	}
	return nil
}

// DatasetOptions converts the loading-related fields into dataset.Options.
func (c Config) DatasetOptions() dataset.Options {
	return dataset.Options{
		Target:                  c.Target,
		IncludeStreamingService: c.IncludeStreamingService,
		Strict:                  c.Strict,
	}
}

// Suite evaluates the algorithm roster under one Config.
type Suite struct {
	cfg    Config
	logger log.Logger
}

// NewSuite validates the config and returns a runnable suite.
func NewSuite(cfg Config) (*Suite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Suite{
		cfg:    cfg,
		logger: log.GetLoggerWithName("bench").With(log.ComponentKey, "bench"),
	}, nil
}

// rosterEntry pairs an algorithm name with its per-fold factory.
type rosterEntry struct {
	name    string
	factory func() model.Regressor
}

// roster returns the algorithms in their fixed reporting order.
func (s *Suite) roster() []rosterEntry {
	cfg := s.cfg
	return []rosterEntry{
		{"ols", func() model.Regressor {
			return linear.NewRegression()
		}},
		{"subset", func() model.Regressor {
			return linear.NewSubsetRegression(cfg.SubsetStrategy, cfg.SubsetCriterion)
		}},
		{"lasso", func() model.Regressor {
			// Lambda comes from Tune; zero only seeds the untuned state.
			la := linear.NewLasso(0)
			la.GridSize = cfg.LassoGridSize
			la.Epsilon = cfg.LassoEpsilon
			return la
		}},
		{"knn", func() model.Regressor {
			// K comes from Tune before the refit.
			return neighbors.NewKNNRegressor(0)
		}},
		{"tree", func() model.Regressor {
			return tree.NewRegressor()
		}},
		{"forest", func() model.Regressor {
			return ensemble.NewRandomForest(ensemble.WithForestSeed(cfg.Seed))
		}},
		{"boost", func() model.Regressor {
			return ensemble.NewGradientBoosting()
		}},
	}
}

// Run evaluates every roster algorithm on the table under the shared
// outer folds and returns the assembled report.
func (s *Suite) Run(table *dataset.Table) (*Report, error) {
	if table == nil || table.X == nil || table.Y == nil {
		return nil, smErrors.NewValueError("bench.Run", "table must carry features and a response")
	}
	n := table.NumSamples()
	if n < s.cfg.OuterK {
		return nil, smErrors.NewValidationError("outer_k", "cannot exceed the sample count", s.cfg.OuterK)
	}

	start := time.Now()
	s.logger.Info("Benchmark started",
		log.OperationKey, log.OperationBenchmark,
		log.SamplesKey, n,
		log.FeaturesKey, table.NumFeatures(),
		log.OuterFoldsKey, s.cfg.OuterK,
		log.InnerFoldsKey, s.cfg.InnerK,
		log.SeedKey, s.cfg.Seed,
		"target", table.Target.String(),
	)

	outer, err := crossval.Split(n, s.cfg.OuterK, s.cfg.Seed)
	if err != nil {
		return nil, err
	}

	roster := s.roster()
	results := make([]AlgorithmResult, 0, len(roster))
	for _, entry := range roster {
		summary, err := crossval.Evaluate(crossval.EvalConfig{
			Name:    entry.name,
			Factory: entry.factory,
			Outer:   outer,
			InnerK:  s.cfg.InnerK,
			Seed:    s.cfg.Seed,
		}, table.X, table.Y)
		if err != nil {
			return nil, smErrors.Wrapf(err, "bench: %s evaluation failed", entry.name)
		}
		results = append(results, newAlgorithmResult(summary))
	}

	report := NewReport(table, s.cfg, results)
	report.ElapsedMs = time.Since(start).Milliseconds()

	s.logger.Info("Benchmark finished",
		log.OperationKey, log.OperationBenchmark,
		log.DurationMsKey, report.ElapsedMs,
		"algorithms", len(results),
	)
	return report, nil
}
