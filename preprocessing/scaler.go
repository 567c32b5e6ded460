// Package preprocessing provides feature encoding and scaling for the
// survey benchmark.
//
// Components follow the scikit-learn API pattern with Fit, Transform, and
// FitTransform methods and integrate with the BaseEstimator pattern for
// state management:
//
//   - StandardScaler: standardizes features to zero mean and unit variance,
//     using statistics from the data it was fitted on
//   - OrdinalEncoder: maps ordered string levels to numeric codes
//   - IndicatorEncoder: expands a categorical column into k-1 indicator
//     columns against a reference level
//
// Scaling statistics always come from training data only; transforming
// held-out data with training statistics is what keeps resampling estimates
// honest.
//
// Example usage:
//
//	scaler := preprocessing.NewStandardScalerDefault()
//	scaledTrain, err := scaler.FitTransform(XTrain)
//	scaledTest, err := scaler.Transform(XTest)
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// StandardScaler standardizes features by removing the mean and scaling to
// unit variance. Statistics are computed per feature at Fit time.
type StandardScaler struct {
	model.BaseEstimator

	// Mean holds the per-feature mean from fitting
	Mean []float64

	// Scale holds the per-feature standard deviation from fitting
	Scale []float64

	// NFeatures is the number of features seen during fitting
	NFeatures int

	// WithMean controls whether the mean is subtracted (default: true)
	WithMean bool

	// WithStd controls whether values are divided by the standard deviation (default: true)
	WithStd bool
}

// NewStandardScaler creates a new StandardScaler.
//
// Parameters:
//   - withMean: whether to center the data at zero by removing the mean
//   - withStd: whether to scale the data to unit variance
//
// Example:
//
//	// Standard z-score normalization (mean=0, std=1)
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(XTrain)
//	XScaled, err := scaler.Transform(XTest)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault creates a StandardScaler with both centering and
// scaling enabled.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit computes the per-feature mean and population standard deviation from
// the training data. The scaler must be fitted before calling Transform or
// InverseTransform.
//
// Errors:
//   - ErrEmptyData: if X is empty
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "StandardScaler.Fit")
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return smErrors.NewModelError("StandardScaler.Fit", "empty data", smErrors.ErrEmptyData)
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	if s.WithMean {
		for j := 0; j < c; j++ {
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			s.Mean[j] = sum / float64(r)
		}
	} else {
		for j := 0; j < c; j++ {
			s.Mean[j] = 0.0
		}
	}

	if s.WithStd {
		for j := 0; j < c; j++ {
			sumSquares := 0.0
			for i := 0; i < r; i++ {
				diff := X.At(i, j) - s.Mean[j]
				sumSquares += diff * diff
			}
			variance := sumSquares / float64(r)
			s.Scale[j] = math.Sqrt(variance)

			// Constant columns would divide by zero; leave them unscaled
			if math.Abs(s.Scale[j]) < 1e-8 {
				s.Scale[j] = 1.0
			}
		}
	} else {
		for j := 0; j < c; j++ {
			s.Scale[j] = 1.0
		}
	}

	s.SetFitted()
	return nil
}

// Transform standardizes X using the fitted statistics:
// X_scaled = (X - mean) / scale.
//
// Errors:
//   - ErrNotFitted: if the scaler hasn't been fitted yet
//   - ErrDimensionMismatch: if X doesn't match the fitted feature count
func (s *StandardScaler) Transform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "StandardScaler.Transform")
	if !s.IsFitted() {
		return nil, smErrors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, smErrors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			value := X.At(i, j)
			standardized := (value - s.Mean[j]) / s.Scale[j]
			result.Set(i, j, standardized)
		}
	}

	return result, nil
}

// FitTransform fits the scaler and transforms the training data in one step.
// Equivalent to calling Fit(X) followed by Transform(X).
func (s *StandardScaler) FitTransform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "StandardScaler.FitTransform")
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform reverses the standardization:
// X_orig = X_scaled * scale + mean.
//
// Errors:
//   - ErrNotFitted: if the scaler hasn't been fitted yet
//   - ErrDimensionMismatch: if X doesn't match the fitted feature count
func (s *StandardScaler) InverseTransform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "StandardScaler.InverseTransform")
	if !s.IsFitted() {
		return nil, smErrors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, smErrors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			value := X.At(i, j)
			original := value*s.Scale[j] + s.Mean[j]
			result.Set(i, j, original)
		}
	}

	return result, nil
}

// GetParams returns the scaler's parameters
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String returns a printable representation of the scaler
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
