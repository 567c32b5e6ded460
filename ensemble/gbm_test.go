package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/crossval"
	"github.com/soundmind-ml/soundmind/metrics"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// gappedStepData is a step like stepData but with the two plateaus far
// apart on the x axis, so any split between them routes every point to
// its own side no matter which rows were sampled.
func gappedStepData(t *testing.T, n int, lo, hi float64) (*mat.Dense, *mat.VecDense) {
	t.Helper()
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if i < n/2 {
			X.Set(i, 0, float64(i))
			y.SetVec(i, lo)
		} else {
			X.Set(i, 0, 100+float64(i))
			y.SetVec(i, hi)
		}
	}
	return X, y
}

func trainMSE(t *testing.T, gb *GradientBoosting, X, y mat.Matrix) float64 {
	t.Helper()
	pred, err := gb.Predict(X)
	require.NoError(t, err)
	mse, err := metrics.MSEMatrix(y, pred)
	require.NoError(t, err)
	return mse
}

func TestGradientBoostingReducesTrainErrorWithRounds(t *testing.T) {
	X, y := noisyLinearData(t, 50, 1, 0.3, 13)

	short := NewGradientBoosting(WithRounds(10))
	require.NoError(t, short.Fit(X, y))

	long := NewGradientBoosting(WithRounds(200))
	require.NoError(t, long.Fit(X, y))

	assert.Less(t, trainMSE(t, long, X, y), trainMSE(t, short, X, y))
}

func TestGradientBoostingFitsStepExactly(t *testing.T) {
	X, y := stepData(t, 20, 0, 10)

	// Every round the boundary tree recovers the remaining residual
	// exactly, so the gap shrinks by the shrinkage factor each time and
	// 200 rounds leave nothing measurable.
	gb := NewGradientBoosting(WithRounds(200))
	require.NoError(t, gb.Fit(X, y))
	require.Equal(t, 200, gb.Rounds())

	assert.Less(t, trainMSE(t, gb, X, y), 1e-12)
}

func TestGradientBoostingShrinkageControlsLearningRate(t *testing.T) {
	X, y := stepData(t, 20, 0, 10)

	slow := NewGradientBoosting(WithRounds(20), WithShrinkage(0.01))
	require.NoError(t, slow.Fit(X, y))

	fast := NewGradientBoosting(WithRounds(20), WithShrinkage(0.5))
	require.NoError(t, fast.Fit(X, y))

	assert.Greater(t, trainMSE(t, slow, X, y), trainMSE(t, fast, X, y))
}

func TestGradientBoostingConstantResponse(t *testing.T) {
	n := 12
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y.SetVec(i, 4)
	}

	gb := NewGradientBoosting(WithRounds(10))
	require.NoError(t, gb.Fit(X, y))

	pred, err := gb.Predict(X)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		assert.InDelta(t, 4.0, pred.At(i, 0), 1e-12)
	}
}

func TestGradientBoostingTuneMonotoneImprovement(t *testing.T) {
	X, y := gappedStepData(t, 20, 0, 10)

	folds, err := crossval.Split(20, 4, 3)
	require.NoError(t, err)

	// On a noiseless step every extra round moves the held-out
	// predictions closer to the plateaus, so the full budget wins.
	gb := NewGradientBoosting(WithRounds(25))
	choice, err := gb.Tune(X, y, folds)
	require.NoError(t, err)

	assert.Equal(t, "rounds", choice.Name)
	assert.Equal(t, 25.0, choice.Value)
	assert.Equal(t, 25, gb.GetParams()["rounds"])
}

func TestGradientBoostingTuneStopsBeforeOverfit(t *testing.T) {
	// The training rows end in an outlier at x=3 and the held-out point
	// at x=3.5 shares its leaf, so every round past the first drags the
	// held-out prediction further from the truth.
	X := mat.NewDense(5, 1, []float64{0, 1, 2, 3, 3.5})
	y := mat.NewVecDense(5, []float64{0, 0, 0, 12, 0})

	folds := []crossval.Fold{
		{},
		{TrainIndices: []int{0, 1, 2, 3}, TestIndices: []int{4}},
	}

	gb := NewGradientBoosting(WithRounds(30))
	choice, err := gb.Tune(X, y, folds)
	require.NoError(t, err)

	assert.Equal(t, "rounds", choice.Name)
	assert.Equal(t, 1.0, choice.Value)
	assert.Equal(t, 1, gb.GetParams()["rounds"])

	require.NoError(t, gb.Fit(X, y))
	assert.Equal(t, 1, gb.Rounds())
}

func TestGradientBoostingTuneValidation(t *testing.T) {
	X, y := stepData(t, 12, 0, 1)
	folds, err := crossval.Split(12, 3, 2)
	require.NoError(t, err)

	gb := NewGradientBoosting()
	_, err = gb.Tune(&mat.Dense{}, &mat.VecDense{}, folds)
	assert.ErrorIs(t, err, smErrors.ErrEmptyData)

	_, err = gb.Tune(X, y, nil)
	var ve *smErrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = gb.Tune(X, y, []crossval.Fold{{}, {}})
	assert.ErrorIs(t, err, smErrors.ErrNoValidFolds)

	bad := NewGradientBoosting(WithShrinkage(2))
	_, err = bad.Tune(X, y, folds)
	assert.ErrorAs(t, err, &ve)
}

func TestGradientBoostingInfluenceFavorsSignalFeature(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, 1)
		if i < n/2 {
			y.SetVec(i, 0)
		} else {
			y.SetVec(i, 10)
		}
	}

	gb := NewGradientBoosting(WithRounds(30))
	require.NoError(t, gb.Fit(X, y))

	imps, err := gb.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imps, 2)
	assert.InDelta(t, 1.0, imps[0], 1e-12)
	assert.InDelta(t, 0.0, imps[1], 1e-12)
}

func TestGradientBoostingFitValidation(t *testing.T) {
	X, y := stepData(t, 10, 0, 1)

	tests := []struct {
		name    string
		options []BoostingOption
		X       mat.Matrix
		y       mat.Matrix
	}{
		{
			name: "empty data",
			X:    &mat.Dense{},
			y:    &mat.VecDense{},
		},
		{
			name: "sample count mismatch",
			X:    X,
			y:    mat.NewVecDense(7, nil),
		},
		{
			name: "y not a column vector",
			X:    X,
			y:    mat.NewDense(10, 2, nil),
		},
		{
			name:    "zero rounds",
			options: []BoostingOption{WithRounds(0)},
			X:       X,
			y:       y,
		},
		{
			name:    "zero shrinkage",
			options: []BoostingOption{WithShrinkage(0)},
			X:       X,
			y:       y,
		},
		{
			name:    "shrinkage above one",
			options: []BoostingOption{WithShrinkage(1.5)},
			X:       X,
			y:       y,
		},
		{
			name:    "zero tree depth",
			options: []BoostingOption{WithTreeDepth(0)},
			X:       X,
			y:       y,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gb := NewGradientBoosting(tt.options...)
			err := gb.Fit(tt.X, tt.y)
			assert.Error(t, err)
			assert.False(t, gb.IsFitted())
		})
	}
}

func TestGradientBoostingPredictValidation(t *testing.T) {
	X, y := stepData(t, 10, 0, 1)

	gb := NewGradientBoosting(WithRounds(5))
	_, err := gb.Predict(X)
	var nf *smErrors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, gb.Fit(X, y))
	_, err = gb.Predict(mat.NewDense(4, 3, nil))
	var de *smErrors.DimensionError
	assert.ErrorAs(t, err, &de)
}

func TestGradientBoostingFeatureImportancesNotFitted(t *testing.T) {
	gb := NewGradientBoosting()
	_, err := gb.FeatureImportances()
	var nf *smErrors.NotFittedError
	assert.ErrorAs(t, err, &nf)
}

func TestGradientBoostingGetParams(t *testing.T) {
	gb := NewGradientBoosting()

	params := gb.GetParams()
	assert.Equal(t, 500, params["rounds"])
	assert.Equal(t, 0.1, params["shrinkage"])
	assert.Equal(t, 3, params["tree_depth"])
}

func TestGradientBoostingSetParams(t *testing.T) {
	gb := NewGradientBoosting()

	err := gb.SetParams(map[string]interface{}{
		"rounds":     200,
		"shrinkage":  0.05,
		"tree_depth": 2,
	})
	require.NoError(t, err)

	params := gb.GetParams()
	assert.Equal(t, 200, params["rounds"])
	assert.Equal(t, 0.05, params["shrinkage"])
	assert.Equal(t, 2, params["tree_depth"])

	require.NoError(t, gb.SetParams(map[string]interface{}{"shrinkage": 1}))
	assert.Equal(t, 1.0, gb.GetParams()["shrinkage"])

	assert.Error(t, gb.SetParams(map[string]interface{}{"rounds": 0}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"shrinkage": 0.0}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"shrinkage": 1.5}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"tree_depth": 2.5}))
	assert.Error(t, gb.SetParams(map[string]interface{}{"unknown": 1}))
}

func BenchmarkGradientBoostingFit(b *testing.B) {
	X := mat.NewDense(100, 2, nil)
	y := mat.NewVecDense(100, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%7))
		y.SetVec(i, float64(i/10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gb := NewGradientBoosting(WithRounds(50))
		if err := gb.Fit(X, y); err != nil {
			b.Fatal(err)
		}
	}
}
