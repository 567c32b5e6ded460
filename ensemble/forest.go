// Package ensemble provides the two tree ensembles of the benchmark:
// a random forest of bagged regression trees and least-squares gradient
// boosting with shallow trees.
//
// Both build on tree.Regressor. The forest decorrelates its trees with
// bootstrap resampling and per-split feature subsampling and needs no
// inner cross-validation; boosting fits each tree to the residuals of the
// ensemble so far and picks its round count by inner cross-validation.
package ensemble

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/core/parallel"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/tree"
)

const (
	defaultNumTrees      = 500
	defaultForestMinLeaf = 5
)

// RandomForest is a bootstrap-aggregated ensemble of regression trees.
//
// Every tree trains on a bootstrap resample of the data and draws a fresh
// random feature subset at each split, mtry = max(p/3, 1) by default.
// Predictions average the trees. For a fixed seed the forest is fully
// deterministic regardless of how the tree fits are scheduled.
type RandomForest struct {
	State *model.StateManager // State manager (composition instead of embedding)

	// Hyperparameters
	numTrees       int   // Number of trees in the forest
	mtry           int   // Features per split (0 = max(p/3, 1))
	minSamplesLeaf int   // Minimum samples per leaf in each tree
	seed           int64 // Base seed; tree i derives its own stream from seed+i

	// Model state
	trees       []*tree.Regressor
	nFeatures   int
	importances []float64

	logger log.Logger // Logger instance
}

// ForestOption configures a RandomForest.
type ForestOption func(*RandomForest)

// WithNumTrees sets the number of trees in the forest.
func WithNumTrees(n int) ForestOption {
	return func(rf *RandomForest) {
		rf.numTrees = n
	}
}

// WithMTry fixes how many features each split considers. Zero keeps the
// regression default max(p/3, 1).
func WithMTry(m int) ForestOption {
	return func(rf *RandomForest) {
		rf.mtry = m
	}
}

// WithForestMinLeaf sets the minimum samples per leaf in every tree.
func WithForestMinLeaf(n int) ForestOption {
	return func(rf *RandomForest) {
		rf.minSamplesLeaf = n
	}
}

// WithForestSeed sets the seed for bootstrap resampling and the per-split
// feature draws.
func WithForestSeed(seed int64) ForestOption {
	return func(rf *RandomForest) {
		rf.seed = seed
	}
}

// NewRandomForest creates a new random forest regressor.
//
// Defaults: 500 trees, mtry = max(p/3, 1), minimum leaf size 5, seed 0.
//
// Example:
//
//	rf := ensemble.NewRandomForest(
//		ensemble.WithNumTrees(200),
//		ensemble.WithForestSeed(42),
//	)
func NewRandomForest(options ...ForestOption) *RandomForest {
	rf := &RandomForest{
		State:          model.NewStateManager(),
		numTrees:       defaultNumTrees,
		minSamplesLeaf: defaultForestMinLeaf,
	}

	for _, opt := range options {
		opt(rf)
	}

	// Set up logger with model context
	rf.logger = log.GetLoggerWithName("ensemble").With(
		log.ModelNameKey, "RandomForest",
		log.ComponentKey, "ensemble",
	)

	return rf
}

// Fit trains the forest on the provided data.
//
// Tree i resamples n rows with replacement from its own seeded stream and
// grows with per-split feature subsampling. Trees fit in parallel; the
// resample streams are indexed by tree, so the result does not depend on
// scheduling.
//
// Parameters:
//   - X: Feature matrix of shape (n_samples, n_features)
//   - y: Response vector of shape (n_samples, 1)
//
// Returns:
//   - error: nil if training succeeds, otherwise an error describing the failure
//
// Errors:
//   - ErrEmptyData: if X or y are empty
//   - DimensionError: if the number of samples in X and y don't match
//   - ValidationError: if a hyperparameter is out of range
func (rf *RandomForest) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "RandomForest.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if rf.logger != nil {
		rf.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"trees", rf.numTrees,
		)
	}

	if r == 0 || c == 0 {
		return smErrors.NewModelError("RandomForest.Fit", "empty data", smErrors.ErrEmptyData)
	}

	if ry != r {
		return smErrors.NewDimensionError("RandomForest.Fit", r, ry, 0)
	}

	if cy != 1 {
		return smErrors.NewValueError("RandomForest.Fit", "y must be a column vector")
	}

	if rf.numTrees < 1 {
		return smErrors.NewValidationError("num_trees", "must be at least 1", rf.numTrees)
	}

	if rf.mtry < 0 || rf.mtry > c {
		return smErrors.NewValidationError("mtry", "must be between 0 and the feature count", rf.mtry)
	}

	if rf.minSamplesLeaf < 1 {
		return smErrors.NewValidationError("min_samples_leaf", "must be at least 1", rf.minSamplesLeaf)
	}

	mtry := rf.mtry
	if mtry == 0 {
		mtry = c / 3
		if mtry < 1 {
			mtry = 1
		}
	}

	Xd := mat.DenseCopyOf(X)
	yv := make([]float64, r)
	for i := 0; i < r; i++ {
		yv[i] = y.At(i, 0)
	}

	trees := make([]*tree.Regressor, rf.numTrees)
	fitErr := parallel.ParallelizeIndexed(rf.numTrees, func(i int) error {
		rng := rand.New(rand.NewPCG(uint64(rf.seed), uint64(rf.seed+int64(i))))

		Xb := mat.NewDense(r, c, nil)
		yb := mat.NewVecDense(r, nil)
		for row := 0; row < r; row++ {
			src := rng.IntN(r)
			for j := 0; j < c; j++ {
				Xb.Set(row, j, Xd.At(src, j))
			}
			yb.SetVec(row, yv[src])
		}

		t := tree.NewRegressor(
			tree.WithMaxFeatures(mtry),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithSeed(rf.seed+int64(i)),
		)
		if err := t.Fit(Xb, yb); err != nil {
			return err
		}
		trees[i] = t
		return nil
	})
	if fitErr != nil {
		return fitErr
	}

	rf.trees = trees
	rf.nFeatures = c
	rf.importances = averageImportances(trees, c)

	// Set model as fitted
	rf.State.SetFitted()
	rf.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if rf.logger != nil {
		rf.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"trees", len(trees),
		)
	}

	return nil
}

// Predict generates predictions for the input feature matrix.
//
// Each sample's prediction is the mean of the individual tree predictions.
//
// Errors:
//   - NotFittedError: if the forest hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (rf *RandomForest) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "RandomForest.Predict")
	if !rf.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("RandomForest", "Predict")
	}

	r, c := X.Dims()
	if c != rf.nFeatures {
		return nil, smErrors.NewDimensionError("RandomForest.Predict", rf.nFeatures, c, 1)
	}

	predictions := mat.NewDense(r, 1, nil)
	for _, t := range rf.trees {
		pred, err := t.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			predictions.Set(i, 0, predictions.At(i, 0)+pred.At(i, 0))
		}
	}

	scale := 1.0 / float64(len(rf.trees))
	for i := 0; i < r; i++ {
		predictions.Set(i, 0, predictions.At(i, 0)*scale)
	}

	if rf.logger != nil {
		rf.logger.Debug("Prediction completed",
			log.OperationKey, log.OperationPredict,
			log.PredsKey, r,
		)
	}

	return predictions, nil
}

// FeatureImportances returns the forest's normalized impurity-based
// feature importances, the renormalized mean of the per-tree importances.
//
// Errors:
//   - NotFittedError: if the forest hasn't been trained yet
func (rf *RandomForest) FeatureImportances() ([]float64, error) {
	if !rf.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("RandomForest", "FeatureImportances")
	}

	out := make([]float64, len(rf.importances))
	copy(out, rf.importances)
	return out, nil
}

// averageImportances sums the per-tree normalized importances and rescales
// the result to sum to 1. Trees that never split contribute nothing.
func averageImportances(trees []*tree.Regressor, nFeatures int) []float64 {
	importances := make([]float64, nFeatures)
	for _, t := range trees {
		ti, err := t.FeatureImportances()
		if err != nil {
			continue
		}
		for j, imp := range ti {
			importances[j] += imp
		}
	}

	var total float64
	for _, imp := range importances {
		total += imp
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}
	return importances
}

// NumTrees returns how many trees the fitted forest holds.
func (rf *RandomForest) NumTrees() int {
	return len(rf.trees)
}

// IsFitted returns whether the forest has been fitted.
func (rf *RandomForest) IsFitted() bool {
	return rf.State.IsFitted()
}

// GetParams returns the forest's hyperparameters.
func (rf *RandomForest) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"num_trees":        rf.numTrees,
		"mtry":             rf.mtry,
		"min_samples_leaf": rf.minSamplesLeaf,
		"seed":             rf.seed,
	}
}

// SetParams sets the forest's hyperparameters.
func (rf *RandomForest) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "num_trees":
			v, ok := toInt(value)
			if !ok || v < 1 {
				return smErrors.NewValidationError("num_trees", "must be a positive integer", value)
			}
			rf.numTrees = v
		case "mtry":
			v, ok := toInt(value)
			if !ok || v < 0 {
				return smErrors.NewValidationError("mtry", "must be a non-negative integer", value)
			}
			rf.mtry = v
		case "min_samples_leaf":
			v, ok := toInt(value)
			if !ok || v < 1 {
				return smErrors.NewValidationError("min_samples_leaf", "must be a positive integer", value)
			}
			rf.minSamplesLeaf = v
		case "seed":
			v, ok := toInt(value)
			if !ok {
				return smErrors.NewValidationError("seed", "must be an integer", value)
			}
			rf.seed = int64(v)
		default:
			return smErrors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// toInt coerces the numeric types that reach SetParams through JSON or
// literal maps.
func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
