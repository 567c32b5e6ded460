package crossval

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/core/parallel"
	"github.com/soundmind-ml/soundmind/metrics"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// Choice records a tuned hyperparameter selection.
type Choice struct {
	// Name identifies the hyperparameter, such as "lambda" or "k".
	Name string
	// Value is the selected setting.
	Value float64
}

// Tunable is implemented by estimators that pick a hyperparameter by inner
// cross-validation. Tune scores candidates on the given folds of (X, y),
// leaves the receiver configured with the winning value, and returns it; the
// caller then refits on the full training partition.
type Tunable interface {
	Tune(X, y mat.Matrix, folds []Fold) (Choice, error)
}

// SubsetReporter is implemented by estimators that effectively fit on a
// subset of the input features and can report which ones survived.
type SubsetReporter interface {
	SelectedFeatures() []int
}

// FoldResult is the immutable record of one estimator on one outer fold.
type FoldResult struct {
	// Fold is the outer fold index.
	Fold int
	// TrainMSE is the mean squared error on the training partition.
	TrainMSE float64
	// TestMSE is the mean squared error on the held-out partition.
	TestMSE float64
	// Hyper holds the inner-CV selection, nil for untuned estimators.
	Hyper *Choice
	// Importances holds per-feature scores when the estimator exposes
	// them, nil otherwise.
	Importances []float64
	// Support holds the selected feature indices when the estimator
	// reports a subset, nil otherwise.
	Support []int
}

// Summary aggregates the per-fold records for one estimator.
type Summary struct {
	Name  string
	Folds []FoldResult
	// MeanTrainMSE and MeanTestMSE average the per-fold errors.
	MeanTrainMSE float64
	MeanTestMSE  float64
	// MinTestMSE is the best single fold. It indicates achievable error
	// under a favorable partition and is not an unbiased estimate.
	MinTestMSE float64
}

// NewSummary aggregates fold results into a Summary.
func NewSummary(name string, folds []FoldResult) *Summary {
	s := &Summary{Name: name, Folds: folds}
	if len(folds) == 0 {
		return s
	}
	s.MinTestMSE = math.Inf(1)
	for _, fr := range folds {
		s.MeanTrainMSE += fr.TrainMSE
		s.MeanTestMSE += fr.TestMSE
		if fr.TestMSE < s.MinTestMSE {
			s.MinTestMSE = fr.TestMSE
		}
	}
	s.MeanTrainMSE /= float64(len(folds))
	s.MeanTestMSE /= float64(len(folds))
	return s
}

// EvalConfig describes one estimator's pass through the outer folds.
type EvalConfig struct {
	// Name labels the estimator in logs and summaries.
	Name string
	// Factory builds a fresh estimator per outer fold.
	Factory func() model.Regressor
	// Outer holds the shared outer folds.
	Outer []Fold
	// InnerK is the inner fold count used when the estimator is Tunable.
	InnerK int
	// Seed derives the per-fold inner assignments.
	Seed int64
}

// Evaluate runs nested cross-validation for one estimator. Each outer fold
// gets a fresh estimator from the factory; Tunable estimators first select
// their hyperparameter on inner folds carved from the training partition,
// then refit on all of it. Outer folds run concurrently and results land in
// fold order, so output is independent of scheduling.
func Evaluate(cfg EvalConfig, X, y mat.Matrix) (*Summary, error) {
	if cfg.Factory == nil {
		return nil, smErrors.NewValidationError("factory", "must not be nil", nil)
	}
	if len(cfg.Outer) == 0 {
		return nil, smErrors.NewValidationError("outer", "needs at least one fold", 0)
	}
	rows, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return nil, smErrors.NewDimensionError("crossval.Evaluate", rows, yRows, 0)
	}

	logger := log.GetLoggerWithName("crossval")
	logger.Info("Evaluation started",
		log.OperationKey, log.OperationEvaluate,
		"algorithm", cfg.Name,
		log.OuterFoldsKey, len(cfg.Outer),
		log.InnerFoldsKey, cfg.InnerK,
		log.SeedKey, cfg.Seed,
		log.SamplesKey, rows)

	results := make([]FoldResult, len(cfg.Outer))
	err := parallel.ParallelizeIndexed(len(cfg.Outer), func(i int) error {
		fold := cfg.Outer[i]
		if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
			return smErrors.NewValueError("crossval.Evaluate", "outer fold with an empty partition")
		}

		Xtr, ytr, err := Subset(X, y, fold.TrainIndices)
		if err != nil {
			return err
		}
		Xte, yte, err := Subset(X, y, fold.TestIndices)
		if err != nil {
			return err
		}

		est := cfg.Factory()
		result := FoldResult{Fold: i}

		if tunable, ok := est.(Tunable); ok {
			inner, err := Split(len(fold.TrainIndices), cfg.InnerK, cfg.Seed+int64(i)+1)
			if err != nil {
				return err
			}
			choice, err := tunable.Tune(Xtr, ytr, inner)
			if err != nil {
				return smErrors.Wrapf(err, "%s: tuning failed on fold %d", cfg.Name, i)
			}
			result.Hyper = &choice
		}

		if err := est.Fit(Xtr, ytr); err != nil {
			return smErrors.Wrapf(err, "%s: fit failed on fold %d", cfg.Name, i)
		}

		trainPred, err := est.Predict(Xtr)
		if err != nil {
			return smErrors.Wrapf(err, "%s: training prediction failed on fold %d", cfg.Name, i)
		}
		if result.TrainMSE, err = metrics.MSEMatrix(ytr, trainPred); err != nil {
			return err
		}

		testPred, err := est.Predict(Xte)
		if err != nil {
			return smErrors.Wrapf(err, "%s: test prediction failed on fold %d", cfg.Name, i)
		}
		if result.TestMSE, err = metrics.MSEMatrix(yte, testPred); err != nil {
			return err
		}

		if importer, ok := est.(model.FeatureImporter); ok {
			imps, err := importer.FeatureImportances()
			if err != nil {
				logger.Debug("Feature importances unavailable",
					"algorithm", cfg.Name,
					log.FoldKey, i,
					"error", err)
			} else {
				result.Importances = imps
			}
		}

		if reporter, ok := est.(SubsetReporter); ok {
			result.Support = reporter.SelectedFeatures()
		}

		results[i] = result
		logger.Debug("Fold evaluated",
			"algorithm", cfg.Name,
			log.FoldKey, i,
			log.TrainMSEKey, result.TrainMSE,
			log.TestMSEKey, result.TestMSE)
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := NewSummary(cfg.Name, results)
	logger.Info("Evaluation finished",
		log.OperationKey, log.OperationEvaluate,
		"algorithm", cfg.Name,
		log.TrainMSEKey, summary.MeanTrainMSE,
		log.TestMSEKey, summary.MeanTestMSE,
		"min_test_mse", summary.MinTestMSE)
	return summary, nil
}

// TuneGrid scores hyperparameter candidates over inner folds and returns the
// Choice minimizing mean validation MSE. Folds with an empty partition are
// excluded from a candidate's average, and errors for individual candidates
// drop them from the search; a search where no candidate has a valid score
// fails with ErrNoValidFolds. Ties keep the earliest candidate, so grids
// should be ordered from simplest to most complex.
func TuneGrid(name string, candidates []float64, X, y mat.Matrix, folds []Fold,
	build func(value float64) (model.Regressor, error)) (Choice, error) {
	if len(candidates) == 0 {
		return Choice{}, smErrors.NewValidationError("candidates", "needs at least one value", 0)
	}

	logger := log.GetLoggerWithName("crossval")
	best := Choice{Name: name}
	bestScore := math.Inf(1)
	found := false

	for _, value := range candidates {
		sum := 0.0
		valid := 0
		for _, fold := range folds {
			if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
				continue
			}
			Xtr, ytr, err := Subset(X, y, fold.TrainIndices)
			if err != nil {
				return Choice{}, err
			}
			Xval, yval, err := Subset(X, y, fold.TestIndices)
			if err != nil {
				return Choice{}, err
			}

			est, err := build(value)
			if err != nil {
				return Choice{}, err
			}
			if err := est.Fit(Xtr, ytr); err != nil {
				logger.Debug("Candidate fit failed on inner fold",
					log.ModelNameKey, name,
					log.ChoiceKey, value,
					"error", err)
				continue
			}
			pred, err := est.Predict(Xval)
			if err != nil {
				logger.Debug("Candidate prediction failed on inner fold",
					log.ModelNameKey, name,
					log.ChoiceKey, value,
					"error", err)
				continue
			}
			mse, err := metrics.MSEMatrix(yval, pred)
			if err != nil {
				continue
			}
			sum += mse
			valid++
		}
		if valid == 0 {
			continue
		}
		score := sum / float64(valid)
		if score < bestScore {
			bestScore = score
			best.Value = value
			found = true
		}
	}

	if !found {
		return Choice{}, smErrors.NewModelError("crossval.TuneGrid", "no candidate scored on any valid fold", smErrors.ErrNoValidFolds)
	}
	logger.Debug("Grid search finished",
		log.ModelNameKey, name,
		log.CandidatesKey, len(candidates),
		log.ChoiceKey, best.Value,
		log.TestMSEKey, bestScore)
	return best, nil
}
