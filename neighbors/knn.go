// Package neighbors implements k-nearest-neighbors regression.
//
// Prediction is the mean response of the k nearest training points under
// Euclidean distance. Distances are computed on standardized features: the
// scaler is fitted on the training data only and applied to every query, so
// wide-range survey columns such as BPM cannot drown out the narrow ordinal
// ones.
package neighbors

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/core/parallel"
	"github.com/soundmind-ml/soundmind/crossval"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/preprocessing"
)

// Queries at or above this row count fan out across workers.
const predictParallelThreshold = 64

// KNNRegressor predicts the mean response of the K nearest training points.
type KNNRegressor struct {
	State     *model.StateManager // State manager (composition instead of embedding)
	K         int                 // Neighbor count
	NFeatures int                 // Number of features

	scaler *preprocessing.StandardScaler
	train  *mat.Dense // Standardized training features
	labels []float64  // Training responses
	logger log.Logger // Logger instance
}

// NewKNNRegressor creates a new k-nearest-neighbors model.
//
// The neighbor count is validated at Fit time so that it can be checked
// against the training sample count. Use Tune to select it by
// cross-validation.
func NewKNNRegressor(k int) *KNNRegressor {
	knn := &KNNRegressor{
		State: model.NewStateManager(),
		K:     k,
	}

	knn.logger = log.GetLoggerWithName("neighbors").With(
		log.ModelNameKey, "KNNRegressor",
		log.ComponentKey, "neighbors",
	)

	return knn
}

// Fit stores the standardized training data for neighbor lookups.
//
// Errors:
//   - ErrEmptyData: if X or y are empty
//   - DimensionError: if the number of samples in X and y don't match
//   - ValidationError: if K is below 1 or above the sample count
func (knn *KNNRegressor) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "KNNRegressor.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return smErrors.NewModelError("KNNRegressor.Fit", "empty data", smErrors.ErrEmptyData)
	}
	if ry != r {
		return smErrors.NewDimensionError("KNNRegressor.Fit", r, ry, 0)
	}
	if cy != 1 {
		return smErrors.NewValueError("KNNRegressor.Fit", "y must be a column vector")
	}
	if knn.K < 1 {
		return smErrors.NewValidationError("k", "must be at least 1", knn.K)
	}
	if knn.K > r {
		return smErrors.NewValidationError("k", "must not exceed the training sample count", knn.K)
	}

	if knn.logger != nil {
		knn.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"k", knn.K,
		)
	}

	knn.scaler = preprocessing.NewStandardScalerDefault()
	scaled, err := knn.scaler.FitTransform(X)
	if err != nil {
		return err
	}
	knn.train = mat.DenseCopyOf(scaled)

	knn.labels = make([]float64, r)
	for i := 0; i < r; i++ {
		knn.labels[i] = y.At(i, 0)
	}

	knn.NFeatures = c
	knn.State.SetFitted()
	knn.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if knn.logger != nil {
		knn.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.SamplesKey, r,
		)
	}

	return nil
}

// Predict averages the responses of the K nearest training points for each
// query row. Queries are standardized with the training statistics. Distance
// ties break toward the lower training index, keeping predictions
// deterministic.
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (knn *KNNRegressor) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "KNNRegressor.Predict")
	if !knn.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("KNNRegressor", "Predict")
	}

	r, c := X.Dims()
	if c != knn.NFeatures {
		return nil, smErrors.NewDimensionError("KNNRegressor.Predict", knn.NFeatures, c, 1)
	}

	if knn.logger != nil {
		knn.logger.Debug("Prediction started", log.PredsKey, r)
	}

	scaled, err := knn.scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	queries := mat.DenseCopyOf(scaled)

	n, _ := knn.train.Dims()
	predictions := mat.NewDense(r, 1, nil)

	parallel.ParallelizeWithThreshold(r, predictParallelThreshold, func(start, end int) {
		dist := make([]float64, n)
		order := make([]int, n)
		for q := start; q < end; q++ {
			for i := 0; i < n; i++ {
				sum := 0.0
				for j := 0; j < knn.NFeatures; j++ {
					d := queries.At(q, j) - knn.train.At(i, j)
					sum += d * d
				}
				dist[i] = sum
				order[i] = i
			}
			sort.Slice(order, func(a, b int) bool {
				if dist[order[a]] != dist[order[b]] {
					return dist[order[a]] < dist[order[b]]
				}
				return order[a] < order[b]
			})

			total := 0.0
			for i := 0; i < knn.K; i++ {
				total += knn.labels[order[i]]
			}
			predictions.Set(q, 0, total/float64(knn.K))
		}
	})

	return predictions, nil
}

// Tune selects the neighbor count by cross-validation over 1..ceil(n/K2),
// where n is the training sample count and K2 the number of inner folds, and
// configures the receiver with the winner. Candidates larger than an inner
// training partition simply fail their fits and drop out of the average.
func (knn *KNNRegressor) Tune(X, y mat.Matrix, folds []crossval.Fold) (crossval.Choice, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return crossval.Choice{}, smErrors.NewModelError("KNNRegressor.Tune", "empty data", smErrors.ErrEmptyData)
	}
	if len(folds) == 0 {
		return crossval.Choice{}, smErrors.NewValidationError("folds", "needs at least one inner fold", 0)
	}

	maxK := (r + len(folds) - 1) / len(folds)
	if maxK < 1 {
		maxK = 1
	}
	candidates := make([]float64, maxK)
	for i := range candidates {
		candidates[i] = float64(i + 1)
	}

	choice, err := crossval.TuneGrid("k", candidates, X, y, folds, func(value float64) (model.Regressor, error) {
		return NewKNNRegressor(int(value)), nil
	})
	if err != nil {
		return crossval.Choice{}, err
	}

	knn.K = int(choice.Value)
	return choice, nil
}

// IsFitted returns whether the model has been fitted.
func (knn *KNNRegressor) IsFitted() bool {
	return knn.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (knn *KNNRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"k":      knn.K,
		"fitted": knn.State.IsFitted(),
	}
}

// SetParams sets the model's hyperparameters.
func (knn *KNNRegressor) SetParams(params map[string]interface{}) error {
	if v, ok := params["k"]; ok {
		k, ok := v.(int)
		if !ok {
			return smErrors.NewValidationError("k", "must be an int", v)
		}
		if k < 1 {
			return smErrors.NewValidationError("k", "must be at least 1", k)
		}
		knn.K = k
	}
	return nil
}
