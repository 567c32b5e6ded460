package linear

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/crossval"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/preprocessing"
)

// Default coordinate descent and regularization path settings.
const (
	defaultLassoMaxIter  = 1000
	defaultLassoTol      = 1e-4
	defaultLassoGridSize = 100
	defaultLassoEpsilon  = 1e-3
)

// Lasso is an L1-regularized linear regression fitted by cyclic coordinate
// descent on standardized features.
//
// The penalty drives individual coefficients exactly to zero, so the fitted
// model doubles as a feature selector. Features are standardized internally
// and coefficients are reported on the original scale, so callers never see
// the standardized space.
type Lasso struct {
	State     *model.StateManager // State manager (composition instead of embedding)
	Lambda    float64             // Regularization strength
	MaxIter   int                 // Coordinate descent sweep limit
	Tol       float64             // Convergence tolerance on coefficient change
	GridSize  int                 // Number of candidates on the Tune grid
	Epsilon   float64             // Smallest grid value as a fraction of lambda_max
	Weights   *mat.VecDense       // Coefficients on the original feature scale
	Intercept float64             // Model intercept
	NFeatures int                 // Number of features
	nonzeros  int                 // Count of nonzero coefficients after fitting
	logger    log.Logger          // Logger instance
}

// NewLasso creates a new LASSO model with the given regularization strength.
//
// A strength of zero reduces the fit to ordinary least squares. Use Tune to
// select the strength by cross-validation instead of fixing it up front.
func NewLasso(lambda float64) *Lasso {
	la := &Lasso{
		State:    model.NewStateManager(),
		Lambda:   lambda,
		MaxIter:  defaultLassoMaxIter,
		Tol:      defaultLassoTol,
		GridSize: defaultLassoGridSize,
		Epsilon:  defaultLassoEpsilon,
	}

	la.logger = log.GetLoggerWithName("linear").With(
		log.ModelNameKey, "Lasso",
		log.ComponentKey, "linear",
	)

	return la
}

// Fit minimizes the LASSO objective
//
//	(1/2n) * ||y - Xw - b||² + lambda * ||w||₁
//
// by cyclic coordinate descent. Features are standardized to zero mean and
// unit variance for the descent and the coefficients are transformed back to
// the original scale afterwards, so the penalty treats every feature equally
// regardless of units.
//
// A fit that exhausts MaxIter sweeps without the largest coefficient update
// dropping below Tol emits a ConvergenceWarning and keeps the current
// coefficients.
//
// Errors:
//   - ErrEmptyData: if X or y are empty
//   - DimensionError: if the number of samples in X and y don't match
//   - ValidationError: if the regularization strength is negative
func (la *Lasso) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "Lasso.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return smErrors.NewModelError("Lasso.Fit", "empty data", smErrors.ErrEmptyData)
	}
	if ry != r {
		return smErrors.NewDimensionError("Lasso.Fit", r, ry, 0)
	}
	if cy != 1 {
		return smErrors.NewValueError("Lasso.Fit", "y must be a column vector")
	}
	if la.Lambda < 0 {
		return smErrors.NewValidationError("lambda", "must be non-negative", la.Lambda)
	}

	if la.logger != nil {
		la.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"lambda", la.Lambda,
		)
	}

	scaler := preprocessing.NewStandardScalerDefault()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return err
	}
	xs := mat.DenseCopyOf(scaled)

	// Center the response; the intercept is recovered afterwards.
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	residual := make([]float64, r)
	for i := 0; i < r; i++ {
		residual[i] = y.At(i, 0) - yMean
	}

	// Standardized non-constant columns have squared norm n; constant
	// columns transform to all zeros and keep a zero coefficient.
	colNorm2 := make([]float64, c)
	for j := 0; j < c; j++ {
		col := xs.ColView(j)
		for i := 0; i < r; i++ {
			v := col.AtVec(i)
			colNorm2[j] += v * v
		}
	}

	n := float64(r)
	beta := make([]float64, c)
	iterations := la.MaxIter
	converged := false

	for iter := 0; iter < la.MaxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < c; j++ {
			if colNorm2[j] == 0 {
				continue
			}

			// Partial residual correlation with column j.
			rho := beta[j] * colNorm2[j]
			for i := 0; i < r; i++ {
				rho += xs.At(i, j) * residual[i]
			}

			next := softThreshold(rho/n, la.Lambda) / (colNorm2[j] / n)
			delta := next - beta[j]
			if delta != 0 {
				for i := 0; i < r; i++ {
					residual[i] -= xs.At(i, j) * delta
				}
				beta[j] = next
			}
			if d := math.Abs(delta); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < la.Tol {
			iterations = iter + 1
			converged = true
			break
		}
	}

	if !converged {
		smErrors.Warn(smErrors.NewConvergenceWarning("Lasso", la.MaxIter,
			"coordinate descent did not converge, increase MaxIter or loosen Tol"))
	}

	// Back-transform to the original feature scale.
	weights := mat.NewVecDense(c, nil)
	intercept := yMean
	nonzeros := 0
	for j := 0; j < c; j++ {
		w := beta[j] / scaler.Scale[j]
		weights.SetVec(j, w)
		intercept -= w * scaler.Mean[j]
		if w != 0 {
			nonzeros++
		}
	}

	la.Weights = weights
	la.Intercept = intercept
	la.NFeatures = c
	la.nonzeros = nonzeros

	la.State.SetFitted()
	la.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if la.logger != nil {
		la.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.IterationKey, iterations,
			"lambda", la.Lambda,
			"nonzeros", nonzeros,
		)
	}

	return nil
}

// softThreshold applies the LASSO shrinkage operator S(z, g).
func softThreshold(z, g float64) float64 {
	switch {
	case z > g:
		return z - g
	case z < -g:
		return z + g
	default:
		return 0
	}
}

// Tune selects the regularization strength by cross-validation over a
// geometric grid and configures the receiver with the winner.
//
// The grid spans [epsilon * lambda_max, lambda_max], where lambda_max is the
// smallest strength shrinking every coefficient to zero on the given data.
// Candidates are scored from strongest to weakest regularization, so ties
// resolve toward the sparser model. When lambda_max is zero there is nothing
// to shrink and the strength is set to zero directly.
func (la *Lasso) Tune(X, y mat.Matrix, folds []crossval.Fold) (crossval.Choice, error) {
	r, c := X.Dims()
	ry, _ := y.Dims()
	if r == 0 || c == 0 {
		return crossval.Choice{}, smErrors.NewModelError("Lasso.Tune", "empty data", smErrors.ErrEmptyData)
	}
	if ry != r {
		return crossval.Choice{}, smErrors.NewDimensionError("Lasso.Tune", r, ry, 0)
	}

	lambdaMax, err := la.lambdaMax(X, y)
	if err != nil {
		return crossval.Choice{}, err
	}
	if lambdaMax <= 0 {
		if la.logger != nil {
			la.logger.Debug("Response uncorrelated with all features, disabling penalty",
				log.OperationKey, log.OperationEvaluate,
			)
		}
		la.Lambda = 0
		return crossval.Choice{Name: "lambda", Value: 0}, nil
	}

	grid := lambdaGrid(lambdaMax, la.Epsilon, la.GridSize)
	choice, err := crossval.TuneGrid("lambda", grid, X, y, folds, func(value float64) (model.Regressor, error) {
		m := NewLasso(value)
		m.MaxIter = la.MaxIter
		m.Tol = la.Tol
		return m, nil
	})
	if err != nil {
		return crossval.Choice{}, err
	}

	la.Lambda = choice.Value
	return choice, nil
}

// lambdaMax computes the smallest penalty that zeroes every coefficient,
// max_j |x̃_j · (y - ȳ)| / n on standardized features.
func (la *Lasso) lambdaMax(X, y mat.Matrix) (float64, error) {
	r, c := X.Dims()

	scaler := preprocessing.NewStandardScalerDefault()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return 0, err
	}
	xs := mat.DenseCopyOf(scaled)

	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	maxCorr := 0.0
	for j := 0; j < c; j++ {
		dot := 0.0
		for i := 0; i < r; i++ {
			dot += xs.At(i, j) * (y.At(i, 0) - yMean)
		}
		if corr := math.Abs(dot) / float64(r); corr > maxCorr {
			maxCorr = corr
		}
	}
	return maxCorr, nil
}

// lambdaGrid builds a descending geometric grid from lambdaMax down to
// epsilon * lambdaMax.
func lambdaGrid(lambdaMax, epsilon float64, size int) []float64 {
	if size < 2 {
		return []float64{lambdaMax}
	}
	grid := make([]float64, size)
	for i := 0; i < size; i++ {
		grid[i] = lambdaMax * math.Pow(epsilon, float64(i)/float64(size-1))
	}
	return grid
}

// Predict generates predictions for the input feature matrix.
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (la *Lasso) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "Lasso.Predict")
	if !la.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("Lasso", "Predict")
	}

	r, c := X.Dims()
	if c != la.NFeatures {
		return nil, smErrors.NewDimensionError("Lasso.Predict", la.NFeatures, c, 1)
	}

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := la.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * la.Weights.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}

	return predictions, nil
}

// GetWeights returns the learned weights (coefficients)
func (la *Lasso) GetWeights() []float64 {
	if la.Weights == nil {
		return nil
	}

	weights := make([]float64, la.Weights.Len())
	for i := 0; i < la.Weights.Len(); i++ {
		weights[i] = la.Weights.AtVec(i)
	}
	return weights
}

// GetIntercept returns the learned intercept
func (la *Lasso) GetIntercept() float64 {
	if !la.State.IsFitted() {
		return 0
	}
	return la.Intercept
}

// NonzeroCount returns the number of features with nonzero coefficients.
func (la *Lasso) NonzeroCount() int {
	return la.nonzeros
}

// SelectedFeatures returns the indices of features the penalty left with a
// nonzero coefficient, ascending.
func (la *Lasso) SelectedFeatures() []int {
	if la.Weights == nil {
		return nil
	}
	selected := make([]int, 0, la.nonzeros)
	for i := 0; i < la.Weights.Len(); i++ {
		if la.Weights.AtVec(i) != 0 {
			selected = append(selected, i)
		}
	}
	return selected
}

// IsFitted returns whether the model has been fitted.
func (la *Lasso) IsFitted() bool {
	return la.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (la *Lasso) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"lambda":   la.Lambda,
		"max_iter": la.MaxIter,
		"tol":      la.Tol,
		"fitted":   la.State.IsFitted(),
	}
}

// SetParams sets the model's hyperparameters.
func (la *Lasso) SetParams(params map[string]interface{}) error {
	if v, ok := params["lambda"]; ok {
		f, ok := v.(float64)
		if !ok {
			return smErrors.NewValidationError("lambda", "must be a float64", v)
		}
		if f < 0 {
			return smErrors.NewValidationError("lambda", "must be non-negative", f)
		}
		la.Lambda = f
	}
	if v, ok := params["max_iter"]; ok {
		n, ok := v.(int)
		if !ok {
			return smErrors.NewValidationError("max_iter", "must be an int", v)
		}
		if n < 1 {
			return smErrors.NewValidationError("max_iter", "must be positive", n)
		}
		la.MaxIter = n
	}
	return nil
}
