// Package linear provides the linear regression family used by the survey
// benchmark: ordinary least squares, best-subset selection with stepwise
// search strategies, and the LASSO.
//
// All estimators share the standard Fit/Predict contract on gonum matrices:
//
//   - Regression: ordinary least squares on the full feature set
//   - SubsetRegression: OLS restricted to the feature subset optimizing a
//     model-selection criterion (R², adjusted R², Mallows' Cp, BIC)
//   - Lasso: L1-regularized regression with the strength chosen by inner
//     cross-validation
//
// Example usage:
//
//	ols := linear.NewRegression()
//	err := ols.Fit(X, y) // X: features, y: response
//	if err != nil {
//		log.Fatal(err)
//	}
//	predictions, err := ols.Predict(XTest)
//
// Fits are numerically backed by QR decomposition, and an unregularized fit
// on fewer observations than parameters fails with a degenerate-fit error
// instead of returning meaningless coefficients.
package linear

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/core/parallel"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// Regression is an ordinary least squares model.
type Regression struct {
	State     *model.StateManager // State manager (composition instead of embedding)
	Weights   *mat.VecDense       // Model weights (coefficients)
	Intercept float64             // Model intercept
	NFeatures int                 // Number of features
	logger    log.Logger          // Logger instance
}

// NewRegression creates a new ordinary least squares model.
//
// The model solves the least squares problem through QR decomposition of the
// intercept-augmented design matrix. The returned model must be trained using
// the Fit method before making predictions.
//
// Returns:
//   - *Regression: A new untrained regression model
//
// Example:
//
//	ols := linear.NewRegression()
//	err := ols.Fit(X, y)
//	predictions, err := ols.Predict(XTest)
func NewRegression() *Regression {
	r := &Regression{
		State: model.NewStateManager(),
	}

	// Set up logger with model context
	r.logger = log.GetLoggerWithName("linear").With(
		log.ModelNameKey, "Regression",
		log.ComponentKey, "linear",
	)

	return r
}

// Fit trains the model on the provided data.
//
// The least squares coefficients are obtained from a QR decomposition of
// [1 | X], which keeps the solve stable without forming X^T X. Fit restarts
// from scratch on every call.
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
//   - DegenerateFitError: if the sample count does not exceed the feature count
//   - ErrSingularMatrix: if the design matrix is rank deficient
func (lr *Regression) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "Regression.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if lr.logger != nil {
		lr.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
		)
	}

	if r == 0 || c == 0 {
		return smErrors.NewModelError("Regression.Fit", "empty data", smErrors.ErrEmptyData)
	}

	if ry != r {
		return smErrors.NewDimensionError("Regression.Fit", r, ry, 0)
	}

	if cy != 1 {
		return smErrors.NewValueError("Regression.Fit", "y must be a column vector")
	}

	if r <= c {
		return smErrors.NewDegenerateFitError("Regression.Fit", r, c+1)
	}

	lr.NFeatures = c

	weights, intercept, _, err := solveLeastSquares(X, y, nil)
	if err != nil {
		return err
	}
	lr.Weights = weights
	lr.Intercept = intercept

	// Set model as fitted
	lr.State.SetFitted()
	lr.State.SetDimensions(lr.NFeatures, r)

	duration := time.Since(startTime)
	if lr.logger != nil {
		lr.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.SamplesKey, r,
			log.FeaturesKey, c,
		)
	}

	return nil
}

// Predict generates predictions for the input feature matrix.
//
// Predictions are computed as y_pred = X * weights + intercept. The model
// must be fitted before calling this method.
//
// Parameters:
//   - X: Feature matrix of shape (n_samples, n_features)
//
// Returns:
//   - mat.Matrix: Prediction matrix of shape (n_samples, 1)
//   - error: nil if prediction succeeds, otherwise an error describing the failure
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (lr *Regression) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "Regression.Predict")
	if !lr.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("Regression", "Predict")
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, smErrors.NewDimensionError("Regression.Predict", lr.NFeatures, c, 1)
	}

	if lr.logger != nil {
		lr.logger.Debug("Prediction started",
			log.OperationKey, log.OperationPredict,
			log.PhaseKey, log.PhaseInference,
			log.SamplesKey, r,
			log.FeaturesKey, c,
		)
	}

	// Prediction: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)

	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}

	if lr.logger != nil {
		lr.logger.Debug("Prediction completed",
			log.OperationKey, log.OperationPredict,
			log.PredsKey, r,
		)
	}

	return predictions, nil
}

// GetWeights returns the learned weights (coefficients)
func (lr *Regression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}

	weights := make([]float64, lr.Weights.Len())
	for i := 0; i < lr.Weights.Len(); i++ {
		weights[i] = lr.Weights.AtVec(i)
	}
	return weights
}

// GetIntercept returns the learned intercept
func (lr *Regression) GetIntercept() float64 {
	if !lr.State.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// Score calculates the coefficient of determination (R²) of the model
func (lr *Regression) Score(X, y mat.Matrix) (_ float64, err error) {
	defer smErrors.Recover(&err, "Regression.Score")
	if !lr.State.IsFitted() {
		return 0, smErrors.NewNotFittedError("Regression", "Score")
	}

	// Calculate predicted values
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	r, _ := y.Dims()

	// Calculate mean of y
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	// Calculate total sum of squares (TSS) and residual sum of squares (RSS)
	var tss, rss float64
	for i := 0; i < r; i++ {
		yTrue := y.At(i, 0)
		yPredVal := yPred.At(i, 0)

		tss += (yTrue - yMean) * (yTrue - yMean)
		rss += (yTrue - yPredVal) * (yTrue - yPredVal)
	}

	// R² = 1 - RSS/TSS
	if tss == 0 {
		return 0, smErrors.NewValueError("Regression.Score", "total sum of squares is zero")
	}

	return 1 - rss/tss, nil
}

// IsFitted returns whether the model has been fitted.
func (lr *Regression) IsFitted() bool {
	return lr.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (lr *Regression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_features": lr.NFeatures,
		"fitted":     lr.State.IsFitted(),
	}
}

// SetParams sets the model's hyperparameters.
func (lr *Regression) SetParams(params map[string]interface{}) error {
	// Regression has no hyperparameters to set
	return nil
}

// solveLeastSquares fits OLS with an intercept on the selected columns of X
// (all columns when cols is nil) and returns the coefficients in cols order,
// the intercept, and the residual sum of squares. Shared by the full model
// and the subset search, which scores thousands of candidate fits.
func solveLeastSquares(X, y mat.Matrix, cols []int) (*mat.VecDense, float64, float64, error) {
	r, c := X.Dims()
	p := c
	if cols != nil {
		p = len(cols)
	}
	if p == 0 {
		return nil, 0, 0, smErrors.NewValueError("linear.solveLeastSquares", "empty column set")
	}
	if r <= p {
		return nil, 0, 0, smErrors.NewDegenerateFitError("linear.solveLeastSquares", r, p+1)
	}

	// Design matrix [1 | X[:, cols]]
	design := mat.NewDense(r, p+1, nil)
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			design.Set(i, 0, 1.0) // Intercept term
			if cols == nil {
				for j := 0; j < p; j++ {
					design.Set(i, j+1, X.At(i, j))
				}
			} else {
				for j, col := range cols {
					design.Set(i, j+1, X.At(i, col))
				}
			}
		}
	})

	yVec := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}

	var qr mat.QR
	qr.Factorize(design)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, yVec); err != nil {
		return nil, 0, 0, smErrors.NewModelError("linear.solveLeastSquares", "rank-deficient design matrix", smErrors.ErrSingularMatrix)
	}

	intercept := sol.AtVec(0)
	weights := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		weights.SetVec(j, sol.AtVec(j+1))
	}

	var rss float64
	for i := 0; i < r; i++ {
		pred := intercept
		if cols == nil {
			for j := 0; j < p; j++ {
				pred += X.At(i, j) * weights.AtVec(j)
			}
		} else {
			for j, col := range cols {
				pred += X.At(i, col) * weights.AtVec(j)
			}
		}
		resid := y.At(i, 0) - pred
		rss += resid * resid
	}

	return weights, intercept, rss, nil
}

// totalSumOfSquares is the squared deviation of y around its mean.
func totalSumOfSquares(y mat.Matrix) float64 {
	r, _ := y.Dims()
	var mean float64
	for i := 0; i < r; i++ {
		mean += y.At(i, 0)
	}
	mean /= float64(r)

	var tss float64
	for i := 0; i < r; i++ {
		d := y.At(i, 0) - mean
		tss += d * d
	}
	return tss
}
