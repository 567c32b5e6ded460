package crossval

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// meanModel predicts the training-set mean of the response.
type meanModel struct {
	mean float64
}

func (m *meanModel) Fit(_, y mat.Matrix) error {
	rows, _ := y.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		sum += y.At(i, 0)
	}
	m.mean = sum / float64(rows)
	return nil
}

func (m *meanModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, m.mean)
	}
	return out, nil
}

// constantModel always predicts a fixed value.
type constantModel struct {
	value float64
}

func (m *constantModel) Fit(_, _ mat.Matrix) error { return nil }

func (m *constantModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, m.value)
	}
	return out, nil
}

// tunedConstant selects its constant from a grid by inner CV.
type tunedConstant struct {
	constantModel
	grid []float64
}

func (m *tunedConstant) Tune(X, y mat.Matrix, folds []Fold) (Choice, error) {
	choice, err := TuneGrid("bias", m.grid, X, y, folds, func(v float64) (model.Regressor, error) {
		return &constantModel{value: v}, nil
	})
	if err != nil {
		return Choice{}, err
	}
	m.value = choice.Value
	return choice, nil
}

// importanceModel exposes a fixed importance vector.
type importanceModel struct {
	meanModel
}

func (m *importanceModel) FeatureImportances() ([]float64, error) {
	return []float64{0.75, 0.25}, nil
}

// subsetModel reports a fixed selected-feature set.
type subsetModel struct {
	meanModel
}

func (m *subsetModel) SelectedFeatures() []int {
	return []int{1}
}

// failingModel rejects every fit.
type failingModel struct{}

func (m *failingModel) Fit(_, _ mat.Matrix) error {
	return smErrors.New("broken estimator")
}

func (m *failingModel) Predict(_ mat.Matrix) (mat.Matrix, error) {
	return nil, smErrors.New("broken estimator")
}

// noisyData builds a deterministic pure-noise regression problem.
func noisyData(n int, sigma float64, seed uint64) (*mat.Dense, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, r.Float64())
		X.Set(i, 1, r.Float64())
		y.SetVec(i, sigma*r.NormFloat64())
	}
	return X, y
}

func TestEvaluateMeanModel(t *testing.T) {
	X, y := noisyData(200, 2.0, 11)
	outer, err := Split(200, 5, 42)
	require.NoError(t, err)

	summary, err := Evaluate(EvalConfig{
		Name:    "mean",
		Factory: func() model.Regressor { return &meanModel{} },
		Outer:   outer,
	}, X, y)
	require.NoError(t, err)

	require.Len(t, summary.Folds, 5)
	for i, fr := range summary.Folds {
		assert.Equal(t, i, fr.Fold)
		assert.Nil(t, fr.Hyper)
		assert.Greater(t, fr.TrainMSE, 0.0)
		assert.Greater(t, fr.TestMSE, 0.0)
	}
	assert.LessOrEqual(t, summary.MinTestMSE, summary.MeanTestMSE)

	// A mean predictor on pure noise should land near the noise variance.
	variance := 4.0
	assert.Greater(t, summary.MeanTestMSE, variance/4)
	assert.Less(t, summary.MeanTestMSE, variance*4)
}

func TestEvaluateDeterministic(t *testing.T) {
	X, y := noisyData(120, 1.0, 5)
	outer, err := Split(120, 6, 9)
	require.NoError(t, err)

	cfg := EvalConfig{
		Name:    "mean",
		Factory: func() model.Regressor { return &meanModel{} },
		Outer:   outer,
	}
	first, err := Evaluate(cfg, X, y)
	require.NoError(t, err)
	second, err := Evaluate(cfg, X, y)
	require.NoError(t, err)

	assert.Equal(t, first.Folds, second.Folds)
	assert.Equal(t, first.MeanTestMSE, second.MeanTestMSE)
	assert.Equal(t, first.MinTestMSE, second.MinTestMSE)
}

func TestEvaluateTunable(t *testing.T) {
	n := 60
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y.SetVec(i, 5.0)
	}
	outer, err := Split(n, 3, 21)
	require.NoError(t, err)

	summary, err := Evaluate(EvalConfig{
		Name:    "const",
		Factory: func() model.Regressor { return &tunedConstant{grid: []float64{3, 5, 7}} },
		Outer:   outer,
		InnerK:  4,
		Seed:    21,
	}, X, y)
	require.NoError(t, err)

	for _, fr := range summary.Folds {
		require.NotNil(t, fr.Hyper)
		assert.Equal(t, "bias", fr.Hyper.Name)
		assert.Equal(t, 5.0, fr.Hyper.Value)
		assert.Equal(t, 0.0, fr.TestMSE)
	}
	assert.Equal(t, 0.0, summary.MeanTestMSE)
}

func TestEvaluateTunableNeedsInnerFolds(t *testing.T) {
	X, y := noisyData(30, 1.0, 2)
	outer, err := Split(30, 3, 2)
	require.NoError(t, err)

	_, err = Evaluate(EvalConfig{
		Name:    "const",
		Factory: func() model.Regressor { return &tunedConstant{grid: []float64{1}} },
		Outer:   outer,
	}, X, y)
	assert.Error(t, err)
}

func TestEvaluateRecordsImportances(t *testing.T) {
	X, y := noisyData(40, 1.0, 3)
	outer, err := Split(40, 4, 3)
	require.NoError(t, err)

	summary, err := Evaluate(EvalConfig{
		Name:    "mean",
		Factory: func() model.Regressor { return &importanceModel{} },
		Outer:   outer,
	}, X, y)
	require.NoError(t, err)

	for _, fr := range summary.Folds {
		assert.Equal(t, []float64{0.75, 0.25}, fr.Importances)
	}
}

func TestEvaluateRecordsSupport(t *testing.T) {
	X, y := noisyData(40, 1.0, 5)
	outer, err := Split(40, 4, 5)
	require.NoError(t, err)

	summary, err := Evaluate(EvalConfig{
		Name:    "mean",
		Factory: func() model.Regressor { return &subsetModel{} },
		Outer:   outer,
	}, X, y)
	require.NoError(t, err)

	for _, fr := range summary.Folds {
		assert.Equal(t, []int{1}, fr.Support)
	}
}

func TestEvaluateValidation(t *testing.T) {
	X, y := noisyData(10, 1.0, 1)

	_, err := Evaluate(EvalConfig{Name: "x"}, X, y)
	assert.Error(t, err)

	_, err = Evaluate(EvalConfig{
		Name:    "x",
		Factory: func() model.Regressor { return &meanModel{} },
	}, X, y)
	assert.Error(t, err)

	outer, err := Split(10, 2, 1)
	require.NoError(t, err)
	short := mat.NewVecDense(4, nil)
	_, err = Evaluate(EvalConfig{
		Name:    "x",
		Factory: func() model.Regressor { return &meanModel{} },
		Outer:   outer,
	}, X, short)
	assert.Error(t, err)
}

func TestEvaluateFitErrorPropagates(t *testing.T) {
	X, y := noisyData(20, 1.0, 4)
	outer, err := Split(20, 2, 4)
	require.NoError(t, err)

	_, err = Evaluate(EvalConfig{
		Name:    "broken",
		Factory: func() model.Regressor { return &failingModel{} },
		Outer:   outer,
	}, X, y)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestTuneGridPicksMinimum(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, 2.0)
	}
	folds, err := Split(n, 4, 13)
	require.NoError(t, err)

	choice, err := TuneGrid("bias", []float64{0, 1, 2, 3}, X, y, folds,
		func(v float64) (model.Regressor, error) {
			return &constantModel{value: v}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "bias", choice.Name)
	assert.Equal(t, 2.0, choice.Value)
}

func TestTuneGridSkipsDegenerateFolds(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, 1.0)
	}

	folds := []Fold{
		{TrainIndices: []int{0, 1, 2, 3, 4}, TestIndices: []int{5, 6, 7}},
		{TrainIndices: []int{5, 6, 7}, TestIndices: nil}, // degenerate
	}
	choice, err := TuneGrid("bias", []float64{1, 9}, X, y, folds,
		func(v float64) (model.Regressor, error) {
			return &constantModel{value: v}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1.0, choice.Value)
}

func TestTuneGridNoValidFolds(t *testing.T) {
	X := mat.NewDense(4, 1, nil)
	y := mat.NewVecDense(4, nil)

	folds := []Fold{{TrainIndices: nil, TestIndices: []int{0}}}
	_, err := TuneGrid("bias", []float64{1}, X, y, folds,
		func(v float64) (model.Regressor, error) {
			return &constantModel{value: v}, nil
		})
	require.Error(t, err)
	assert.True(t, smErrors.Is(err, smErrors.ErrNoValidFolds))
}

func TestTuneGridTieKeepsFirst(t *testing.T) {
	n := 12
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	folds, err := Split(n, 3, 8)
	require.NoError(t, err)

	// Both candidates produce identical predictions, so the first wins.
	choice, err := TuneGrid("k", []float64{4, 9}, X, y, folds,
		func(_ float64) (model.Regressor, error) {
			return &constantModel{value: 0}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4.0, choice.Value)
}

func TestTuneGridEmptyCandidates(t *testing.T) {
	X := mat.NewDense(4, 1, nil)
	y := mat.NewVecDense(4, nil)
	_, err := TuneGrid("k", nil, X, y, nil,
		func(_ float64) (model.Regressor, error) {
			return &constantModel{}, nil
		})
	assert.Error(t, err)
}

func TestNewSummaryAggregates(t *testing.T) {
	folds := []FoldResult{
		{Fold: 0, TrainMSE: 1.0, TestMSE: 4.0},
		{Fold: 1, TrainMSE: 2.0, TestMSE: 2.0},
		{Fold: 2, TrainMSE: 3.0, TestMSE: 6.0},
	}
	s := NewSummary("demo", folds)
	assert.Equal(t, "demo", s.Name)
	assert.InDelta(t, 2.0, s.MeanTrainMSE, 1e-12)
	assert.InDelta(t, 4.0, s.MeanTestMSE, 1e-12)
	assert.Equal(t, 2.0, s.MinTestMSE)

	empty := NewSummary("none", nil)
	assert.Equal(t, 0.0, empty.MeanTestMSE)
	assert.False(t, math.IsInf(empty.MinTestMSE, 1))
}
