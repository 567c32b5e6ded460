package linear

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/crossval"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// lassoTestData builds y = 4*x0 - 3*x1 + 2 + noise over p standard normal
// features. Features beyond the first two carry no signal.
func lassoTestData(n, p int, sigma float64, seed uint64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		target := 4.0*X.At(i, 0) - 3.0*X.At(i, 1) + 2.0
		y.SetVec(i, target+sigma*rng.NormFloat64())
	}
	return X, y
}

func l1Norm(weights []float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += math.Abs(w)
	}
	return sum
}

func TestLasso_ZeroPenaltyMatchesOLS(t *testing.T) {
	X, y := lassoTestData(50, 3, 0.3, 17)

	ols := NewRegression()
	if err := ols.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit OLS: %v", err)
	}

	la := NewLasso(0)
	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit lasso: %v", err)
	}

	olsWeights := ols.GetWeights()
	lassoWeights := la.GetWeights()
	for j := range olsWeights {
		if math.Abs(olsWeights[j]-lassoWeights[j]) > 0.02 {
			t.Errorf("Weight[%d]: lasso = %v, OLS = %v, want match at zero penalty",
				j, lassoWeights[j], olsWeights[j])
		}
	}
	if math.Abs(ols.GetIntercept()-la.GetIntercept()) > 0.02 {
		t.Errorf("Intercept: lasso = %v, OLS = %v", la.GetIntercept(), ols.GetIntercept())
	}
}

func TestLasso_LargePenaltyZeroesEverything(t *testing.T) {
	X, y := lassoTestData(60, 4, 0.3, 29)

	la := NewLasso(1e6)
	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit lasso: %v", err)
	}

	if la.NonzeroCount() != 0 {
		t.Errorf("NonzeroCount = %d, want 0 under overwhelming penalty", la.NonzeroCount())
	}
	for j, w := range la.GetWeights() {
		if w != 0 {
			t.Errorf("Weight[%d] = %v, want exactly 0", j, w)
		}
	}

	// With all coefficients at zero the model predicts the response mean.
	var yMean float64
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		yMean += y.AtVec(i)
	}
	yMean /= float64(n)
	if math.Abs(la.GetIntercept()-yMean) > 1e-9 {
		t.Errorf("Intercept = %v, want response mean %v", la.GetIntercept(), yMean)
	}
}

func TestLasso_PenaltyShrinksCoefficients(t *testing.T) {
	X, y := lassoTestData(100, 5, 0.3, 41)

	weak := NewLasso(0.05)
	if err := weak.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit weak penalty: %v", err)
	}

	strong := NewLasso(0.8)
	if err := strong.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit strong penalty: %v", err)
	}

	weakNorm := l1Norm(weak.GetWeights())
	strongNorm := l1Norm(strong.GetWeights())
	if strongNorm >= weakNorm {
		t.Errorf("L1 norm under strong penalty = %v, want below weak penalty norm %v",
			strongNorm, weakNorm)
	}
	if strong.NonzeroCount() > weak.NonzeroCount() {
		t.Errorf("Nonzeros under strong penalty = %d, want at most weak penalty count %d",
			strong.NonzeroCount(), weak.NonzeroCount())
	}
}

func TestLasso_PathNonzeroMonotone(t *testing.T) {
	// Orthogonal zero-mean design, so the solution is exact
	// soft-thresholding of the per-feature correlations (6, 3, 1) and
	// the active set grows one feature at a time as lambda drops.
	X := mat.NewDense(8, 3, []float64{
		+1, +1, +1,
		+1, +1, -1,
		+1, -1, +1,
		+1, -1, -1,
		-1, +1, +1,
		-1, +1, -1,
		-1, -1, +1,
		-1, -1, -1,
	})
	y := mat.NewVecDense(8, []float64{10, 8, 4, 2, -2, -4, -8, -10})

	path := []struct {
		lambda   float64
		nonzeros int
	}{
		{7, 0},
		{6, 0},
		{4, 1},
		{2, 2},
		{0.5, 3},
	}

	prev := 0
	for _, step := range path {
		la := NewLasso(step.lambda)
		if err := la.Fit(X, y); err != nil {
			t.Fatalf("Failed to fit lambda %v: %v", step.lambda, err)
		}
		if la.NonzeroCount() != step.nonzeros {
			t.Errorf("NonzeroCount at lambda %v = %d, want %d",
				step.lambda, la.NonzeroCount(), step.nonzeros)
		}
		if la.NonzeroCount() < prev {
			t.Errorf("Nonzero count shrank from %d to %d as lambda dropped to %v",
				prev, la.NonzeroCount(), step.lambda)
		}
		prev = la.NonzeroCount()
	}
}

func TestLasso_SelectsSparseSignal(t *testing.T) {
	// One strong feature among five; a moderate penalty should keep exactly
	// that one and zero out the rest.
	rng := rand.New(rand.NewPCG(53, 53))
	n, p := 100, 6
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		y.SetVec(i, 5.0*X.At(i, 0)+0.1*rng.NormFloat64())
	}

	la := NewLasso(0.5)
	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit lasso: %v", err)
	}

	weights := la.GetWeights()
	if weights[0] < 3.0 {
		t.Errorf("Weight[0] = %v, want the strong signal retained", weights[0])
	}
	for j := 1; j < p; j++ {
		if weights[j] != 0 {
			t.Errorf("Weight[%d] = %v, want exactly 0 on noise feature", j, weights[j])
		}
	}
	if la.NonzeroCount() != 1 {
		t.Errorf("NonzeroCount = %d, want 1", la.NonzeroCount())
	}
	if selected := la.SelectedFeatures(); len(selected) != 1 || selected[0] != 0 {
		t.Errorf("SelectedFeatures() = %v, want [0]", selected)
	}
}

func TestLasso_SelectedFeaturesNotFitted(t *testing.T) {
	la := NewLasso(0.5)
	if la.SelectedFeatures() != nil {
		t.Errorf("SelectedFeatures() = %v before fitting, want nil", la.SelectedFeatures())
	}
}

func TestLasso_TuneSelectsLambda(t *testing.T) {
	X, y := lassoTestData(120, 5, 0.5, 61)

	folds, err := crossval.Split(120, 5, 61)
	if err != nil {
		t.Fatalf("Failed to split folds: %v", err)
	}

	la := NewLasso(0)
	la.GridSize = 25
	choice, err := la.Tune(X, y, folds)
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}

	if choice.Name != "lambda" {
		t.Errorf("Choice name = %q, want lambda", choice.Name)
	}
	if choice.Value <= 0 {
		t.Errorf("Choice value = %v, want positive on correlated data", choice.Value)
	}
	if la.Lambda != choice.Value {
		t.Errorf("Lambda = %v, want tuned value %v", la.Lambda, choice.Value)
	}

	// Refit with the selection keeps the informative features.
	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Failed to refit with tuned lambda: %v", err)
	}
	weights := la.GetWeights()
	if weights[0] <= 0 || weights[1] >= 0 {
		t.Errorf("Weights = %v, want positive weight on feature 0 and negative on feature 1", weights)
	}
}

func TestLasso_TuneConstantResponse(t *testing.T) {
	rng := rand.New(rand.NewPCG(71, 71))
	n, p := 40, 3
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		y.SetVec(i, 7.0)
	}

	la := NewLasso(0)
	choice, err := la.Tune(X, y, nil)
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if choice.Value != 0 || la.Lambda != 0 {
		t.Errorf("Choice = %v, Lambda = %v, want 0 when nothing correlates", choice.Value, la.Lambda)
	}

	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit constant response: %v", err)
	}
	if la.NonzeroCount() != 0 {
		t.Errorf("NonzeroCount = %d, want 0", la.NonzeroCount())
	}
	if math.Abs(la.GetIntercept()-7.0) > 1e-9 {
		t.Errorf("Intercept = %v, want 7.0", la.GetIntercept())
	}
}

func TestLasso_ConvergenceWarning(t *testing.T) {
	// Force provider initialization first so the zerolog hook is already
	// installed before the test replaces it.
	log.GetLoggerWithName("warmup")

	var captured []error
	smErrors.SetZerologWarnFunc(nil)
	smErrors.SetWarningHandler(func(w error) { captured = append(captured, w) })
	defer func() {
		smErrors.SetWarningHandler(nil)
		smErrors.SetZerologWarnFunc(func(w error) {
			log.GetLoggerWithName("warnings").Warn(w.Error(), "warning", w)
		})
	}()

	X, y := lassoTestData(60, 4, 0.3, 83)

	la := NewLasso(0.1)
	la.MaxIter = 1
	la.Tol = 1e-12
	if err := la.Fit(X, y); err != nil {
		t.Fatalf("Fit should succeed despite non-convergence: %v", err)
	}

	if len(captured) != 1 {
		t.Fatalf("Captured %d warnings, want 1", len(captured))
	}
	var warning *smErrors.ConvergenceWarning
	if !smErrors.As(captured[0], &warning) {
		t.Fatalf("Warning = %v, want ConvergenceWarning", captured[0])
	}
	if warning.Algorithm != "Lasso" || warning.Iterations != 1 {
		t.Errorf("Warning = %+v, want Lasso after 1 iteration", warning)
	}
}

func TestLasso_FitValidation(t *testing.T) {
	tests := []struct {
		name   string
		X      *mat.Dense
		y      *mat.VecDense
		lambda float64
	}{
		{
			name:   "empty data",
			X:      &mat.Dense{},
			y:      &mat.VecDense{},
			lambda: 0.1,
		},
		{
			name:   "mismatched dimensions",
			X:      mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
			y:      mat.NewVecDense(2, []float64{1, 2}),
			lambda: 0.1,
		},
		{
			name:   "negative lambda",
			X:      mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
			y:      mat.NewVecDense(3, []float64{1, 2, 3}),
			lambda: -0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			la := NewLasso(tt.lambda)
			if err := la.Fit(tt.X, tt.y); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLasso_PredictNotFitted(t *testing.T) {
	la := NewLasso(0.1)

	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if _, err := la.Predict(X); err == nil {
		t.Error("Expected error when predicting with unfitted model")
	}
}

func TestLasso_SetParams(t *testing.T) {
	la := NewLasso(0.1)

	if err := la.SetParams(map[string]interface{}{"lambda": 0.7, "max_iter": 200}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	if la.Lambda != 0.7 || la.MaxIter != 200 {
		t.Errorf("Params = %v/%v, want 0.7/200", la.Lambda, la.MaxIter)
	}

	if err := la.SetParams(map[string]interface{}{"lambda": -1.0}); err == nil {
		t.Error("Expected error for negative lambda")
	}
	if err := la.SetParams(map[string]interface{}{"max_iter": 0}); err == nil {
		t.Error("Expected error for zero max_iter")
	}
}
