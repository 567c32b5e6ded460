package ensemble

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/crossval"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/tree"
)

const (
	defaultBoostingRounds = 500
	defaultShrinkage      = 0.1
	defaultTreeDepth      = 3
)

// GradientBoosting is an additive ensemble of shallow regression trees
// fit by gradient descent on squared-error loss.
//
// The model starts from the response mean and, round by round, fits a
// depth-limited tree to the current residuals and adds a shrunken copy of
// its predictions. The round count is the capacity hyperparameter; Tune
// picks it by inner cross-validation along the staged fit.
type GradientBoosting struct {
	State *model.StateManager // State manager (composition instead of embedding)

	// Hyperparameters
	rounds    int     // Boosting rounds to fit (Tune lowers it to the cross-validated pick)
	shrinkage float64 // Learning rate applied to every tree's contribution
	treeDepth int     // Depth limit of the residual trees

	// Model state
	baseline    float64
	trees       []*tree.Regressor
	nFeatures   int
	importances []float64

	logger log.Logger // Logger instance
}

// BoostingOption configures a GradientBoosting model.
type BoostingOption func(*GradientBoosting)

// WithRounds sets the number of boosting rounds. When Tune runs first,
// this is the budget its staged search scans.
func WithRounds(n int) BoostingOption {
	return func(gb *GradientBoosting) {
		gb.rounds = n
	}
}

// WithShrinkage sets the learning rate in (0, 1].
func WithShrinkage(s float64) BoostingOption {
	return func(gb *GradientBoosting) {
		gb.shrinkage = s
	}
}

// WithTreeDepth sets the depth limit of the residual trees.
func WithTreeDepth(d int) BoostingOption {
	return func(gb *GradientBoosting) {
		gb.treeDepth = d
	}
}

// NewGradientBoosting creates a new gradient boosting regressor.
//
// Defaults: 500 rounds, shrinkage 0.1, tree depth 3.
//
// Example:
//
//	gb := ensemble.NewGradientBoosting(
//		ensemble.WithRounds(200),
//		ensemble.WithShrinkage(0.05),
//	)
func NewGradientBoosting(options ...BoostingOption) *GradientBoosting {
	gb := &GradientBoosting{
		State:     model.NewStateManager(),
		rounds:    defaultBoostingRounds,
		shrinkage: defaultShrinkage,
		treeDepth: defaultTreeDepth,
	}

	for _, opt := range options {
		opt(gb)
	}

	// Set up logger with model context
	gb.logger = log.GetLoggerWithName("ensemble").With(
		log.ModelNameKey, "GradientBoosting",
		log.ComponentKey, "ensemble",
	)

	return gb
}

// validateSettings rejects out-of-range hyperparameters before any
// training work starts. Shared by Fit and Tune, which trains fold models
// without going through Fit.
func (gb *GradientBoosting) validateSettings() error {
	if gb.rounds < 1 {
		return smErrors.NewValidationError("rounds", "must be at least 1", gb.rounds)
	}
	if gb.shrinkage <= 0 || gb.shrinkage > 1 {
		return smErrors.NewValidationError("shrinkage", "must be in (0, 1]", gb.shrinkage)
	}
	if gb.treeDepth < 1 {
		return smErrors.NewValidationError("tree_depth", "must be at least 1", gb.treeDepth)
	}
	return nil
}

// Fit trains the boosting ensemble on the provided data.
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
func (gb *GradientBoosting) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "GradientBoosting.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if gb.logger != nil {
		gb.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"rounds", gb.rounds,
		)
	}

	if r == 0 || c == 0 {
		return smErrors.NewModelError("GradientBoosting.Fit", "empty data", smErrors.ErrEmptyData)
	}

	if ry != r {
		return smErrors.NewDimensionError("GradientBoosting.Fit", r, ry, 0)
	}

	if cy != 1 {
		return smErrors.NewValueError("GradientBoosting.Fit", "y must be a column vector")
	}

	if err := gb.validateSettings(); err != nil {
		return err
	}

	baseline := meanResponse(y)
	trees := make([]*tree.Regressor, 0, gb.rounds)
	err = gb.boostRounds(X, y, baseline, gb.rounds, func(t *tree.Regressor) error {
		trees = append(trees, t)
		return nil
	})
	if err != nil {
		return err
	}

	gb.baseline = baseline
	gb.trees = trees
	gb.nFeatures = c
	gb.importances = averageImportances(trees, c)

	// Set model as fitted
	gb.State.SetFitted()
	gb.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if gb.logger != nil {
		gb.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"rounds", len(trees),
		)
	}

	return nil
}

// boostRounds runs the additive fitting loop: residuals start at
// y - baseline, every round fits a depth-limited tree to them, subtracts
// its shrunken predictions, and hands the tree to observe.
func (gb *GradientBoosting) boostRounds(X, y mat.Matrix, baseline float64, rounds int, observe func(t *tree.Regressor) error) error {
	n, _ := X.Dims()

	residual := make([]float64, n)
	for i := 0; i < n; i++ {
		residual[i] = y.At(i, 0) - baseline
	}
	// The vector shares the slice, so updating residual re-targets the
	// next round's fit.
	resVec := mat.NewVecDense(n, residual)

	for m := 0; m < rounds; m++ {
		t := tree.NewRegressor(tree.WithMaxDepth(gb.treeDepth))
		if err := t.Fit(X, resVec); err != nil {
			return err
		}
		pred, err := t.Predict(X)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			residual[i] -= gb.shrinkage * pred.At(i, 0)
		}
		if err := observe(t); err != nil {
			return err
		}
	}
	return nil
}

// Predict generates predictions for the input feature matrix.
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (gb *GradientBoosting) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "GradientBoosting.Predict")
	if !gb.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("GradientBoosting", "Predict")
	}

	r, c := X.Dims()
	if c != gb.nFeatures {
		return nil, smErrors.NewDimensionError("GradientBoosting.Predict", gb.nFeatures, c, 1)
	}

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		predictions.Set(i, 0, gb.baseline)
	}
	for _, t := range gb.trees {
		pred, err := t.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			predictions.Set(i, 0, predictions.At(i, 0)+gb.shrinkage*pred.At(i, 0))
		}
	}

	if gb.logger != nil {
		gb.logger.Debug("Prediction completed",
			log.OperationKey, log.OperationPredict,
			log.PredsKey, r,
		)
	}

	return predictions, nil
}

// Tune selects the boosting round count by cross-validation and lowers
// the receiver's round budget to the winner.
//
// Each inner fold fits the full budget once and records the held-out MSE
// after every round along the way; averaging those staged curves across
// folds gives one score per candidate count. The scan runs from fewer to
// more rounds with a strict comparison, so ties keep the smaller
// ensemble. Folds whose staged fit fails are skipped.
func (gb *GradientBoosting) Tune(X, y mat.Matrix, folds []crossval.Fold) (crossval.Choice, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return crossval.Choice{}, smErrors.NewModelError("GradientBoosting.Tune", "empty data", smErrors.ErrEmptyData)
	}
	if len(folds) == 0 {
		return crossval.Choice{}, smErrors.NewValidationError("folds", "needs at least one inner fold", 0)
	}
	if err := gb.validateSettings(); err != nil {
		return crossval.Choice{}, err
	}

	budget := gb.rounds
	mseSum := make([]float64, budget)
	validFolds := 0

	for i, fold := range folds {
		if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
			continue
		}
		Xtr, ytr, err := crossval.Subset(X, y, fold.TrainIndices)
		if err != nil {
			return crossval.Choice{}, err
		}
		Xte, yte, err := crossval.Subset(X, y, fold.TestIndices)
		if err != nil {
			return crossval.Choice{}, err
		}

		stage, err := gb.stagedTestMSE(Xtr, ytr, Xte, yte, budget)
		if err != nil {
			if gb.logger != nil {
				gb.logger.Debug("Staged fit failed on inner fold",
					log.FoldKey, i,
					"error", err)
			}
			continue
		}
		for m, mse := range stage {
			mseSum[m] += mse
		}
		validFolds++
	}

	if validFolds == 0 {
		return crossval.Choice{}, smErrors.NewModelError("GradientBoosting.Tune", "no fold produced a staged fit", smErrors.ErrNoValidFolds)
	}

	best := 0
	for m := 1; m < budget; m++ {
		if mseSum[m] < mseSum[best] {
			best = m
		}
	}

	gb.rounds = best + 1
	choice := crossval.Choice{Name: "rounds", Value: float64(best + 1)}

	if gb.logger != nil {
		gb.logger.Debug("Boosting rounds selected",
			log.ChoiceKey, choice.Value,
			log.CandidatesKey, budget,
			log.TestMSEKey, mseSum[best]/float64(validFolds),
		)
	}
	return choice, nil
}

// stagedTestMSE fits up to budget rounds on the training partition and
// returns the test MSE after each round.
func (gb *GradientBoosting) stagedTestMSE(Xtr, ytr, Xte, yte mat.Matrix, budget int) ([]float64, error) {
	nTest, _ := Xte.Dims()
	baseline := meanResponse(ytr)

	fTest := make([]float64, nTest)
	for i := range fTest {
		fTest[i] = baseline
	}

	stage := make([]float64, 0, budget)
	err := gb.boostRounds(Xtr, ytr, baseline, budget, func(t *tree.Regressor) error {
		pred, err := t.Predict(Xte)
		if err != nil {
			return err
		}
		var sse float64
		for i := 0; i < nTest; i++ {
			fTest[i] += gb.shrinkage * pred.At(i, 0)
			d := yte.At(i, 0) - fTest[i]
			sse += d * d
		}
		stage = append(stage, sse/float64(nTest))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// FeatureImportances returns the relative influence of each feature: the
// renormalized mean of the per-tree impurity importances across all
// boosting rounds.
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
func (gb *GradientBoosting) FeatureImportances() ([]float64, error) {
	if !gb.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("GradientBoosting", "FeatureImportances")
	}

	out := make([]float64, len(gb.importances))
	copy(out, gb.importances)
	return out, nil
}

// Rounds returns how many boosting rounds the fitted model holds.
func (gb *GradientBoosting) Rounds() int {
	return len(gb.trees)
}

// IsFitted returns whether the model has been fitted.
func (gb *GradientBoosting) IsFitted() bool {
	return gb.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (gb *GradientBoosting) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"rounds":     gb.rounds,
		"shrinkage":  gb.shrinkage,
		"tree_depth": gb.treeDepth,
	}
}

// SetParams sets the model's hyperparameters.
func (gb *GradientBoosting) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "rounds":
			v, ok := toInt(value)
			if !ok || v < 1 {
				return smErrors.NewValidationError("rounds", "must be a positive integer", value)
			}
			gb.rounds = v
		case "shrinkage":
			v, ok := toFloat(value)
			if !ok || v <= 0 || v > 1 {
				return smErrors.NewValidationError("shrinkage", "must be in (0, 1]", value)
			}
			gb.shrinkage = v
		case "tree_depth":
			v, ok := toInt(value)
			if !ok || v < 1 {
				return smErrors.NewValidationError("tree_depth", "must be a positive integer", value)
			}
			gb.treeDepth = v
		default:
			return smErrors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// toFloat coerces the numeric types that reach SetParams.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// meanResponse is the mean of a column-vector response.
func meanResponse(y mat.Matrix) float64 {
	r, _ := y.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		sum += y.At(i, 0)
	}
	return sum / float64(r)
}
