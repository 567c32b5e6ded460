package linear

import (
	"math"
	"math/bits"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/core/parallel"
	"github.com/soundmind-ml/soundmind/metrics"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// SubsetStrategy selects how candidate feature subsets are enumerated.
type SubsetStrategy int

const (
	// StrategyExhaustive scores every non-empty subset. Exponential in the
	// feature count, so it is capped at maxExhaustiveFeatures features.
	StrategyExhaustive SubsetStrategy = iota

	// StrategyForward grows the subset one feature at a time, keeping the
	// addition with the lowest residual sum of squares.
	StrategyForward

	// StrategyBackward starts from the full model and drops one feature at a
	// time, keeping the removal with the lowest residual sum of squares.
	StrategyBackward
)

// maxExhaustiveFeatures bounds the exhaustive search at 2^16 candidate fits.
const maxExhaustiveFeatures = 16

// String returns the conventional name of the strategy.
func (s SubsetStrategy) String() string {
	switch s {
	case StrategyExhaustive:
		return "exhaustive"
	case StrategyForward:
		return "forward"
	case StrategyBackward:
		return "backward"
	default:
		return "unknown"
	}
}

// ParseSubsetStrategy converts a configuration string into a SubsetStrategy.
func ParseSubsetStrategy(s string) (SubsetStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exhaustive", "best":
		return StrategyExhaustive, nil
	case "forward", "stepwise_forward":
		return StrategyForward, nil
	case "backward", "stepwise_backward":
		return StrategyBackward, nil
	default:
		return 0, smErrors.NewValidationError("strategy", "must be one of exhaustive, forward, backward", s)
	}
}

// SubsetRegression is OLS restricted to the feature subset optimizing a
// model-selection criterion.
//
// Fit runs a two-stage search: the strategy produces the lowest-RSS candidate
// at each subset size, then the criterion picks the winning size. All four
// criteria are monotone in RSS at fixed size, so the per-size RSS champion is
// the per-size criterion champion and the criterion only has to compare
// across sizes.
type SubsetRegression struct {
	State     *model.StateManager // State manager (composition instead of embedding)
	Strategy  SubsetStrategy      // Candidate enumeration strategy
	Criterion metrics.Criterion   // Model selection criterion
	Support   []int               // Selected feature indices, ascending
	Weights   *mat.VecDense       // Coefficients in Support order
	Intercept float64             // Model intercept
	BestScore float64             // Criterion score of the selected subset
	NFeatures int                 // Number of features in the training matrix
	logger    log.Logger          // Logger instance
}

// NewSubsetRegression creates a new best-subset model for the given search
// strategy and selection criterion. The model must be trained using the Fit
// method before making predictions.
func NewSubsetRegression(strategy SubsetStrategy, criterion metrics.Criterion) *SubsetRegression {
	sr := &SubsetRegression{
		State:     model.NewStateManager(),
		Strategy:  strategy,
		Criterion: criterion,
	}

	sr.logger = log.GetLoggerWithName("linear").With(
		log.ModelNameKey, "SubsetRegression",
		log.ComponentKey, "linear",
	)

	return sr
}

// candidate is the lowest-RSS subset found at one size.
type candidate struct {
	cols []int
	rss  float64
}

// Fit searches feature subsets and fits OLS on the winner.
//
// Parameters:
//   - X: Feature matrix of shape (n_samples, n_features)
//   - y: Response vector of shape (n_samples, 1)
//
// Errors:
//   - ErrEmptyData: if X or y are empty
//   - DimensionError: if the number of samples in X and y don't match
//   - DegenerateFitError: if the sample count does not exceed the feature count
//   - ValidationError: if exhaustive search is requested beyond 16 features
//   - ErrSingularMatrix: if the backward search cannot fit the full model
func (sr *SubsetRegression) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "SubsetRegression.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return smErrors.NewModelError("SubsetRegression.Fit", "empty data", smErrors.ErrEmptyData)
	}
	if ry != r {
		return smErrors.NewDimensionError("SubsetRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return smErrors.NewValueError("SubsetRegression.Fit", "y must be a column vector")
	}
	if r <= c {
		return smErrors.NewDegenerateFitError("SubsetRegression.Fit", r, c+1)
	}
	if sr.Strategy == StrategyExhaustive && c > maxExhaustiveFeatures {
		return smErrors.NewValidationError("strategy",
			"exhaustive search supports at most 16 features, use forward or backward", c)
	}

	if sr.logger != nil {
		sr.logger.Info("Subset search started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"strategy", sr.Strategy.String(),
			"criterion", sr.Criterion.String(),
		)
	}

	var champions []candidate
	switch sr.Strategy {
	case StrategyExhaustive:
		champions = exhaustiveChampions(X, y, c)
	case StrategyForward:
		champions = forwardChampions(X, y, c)
	case StrategyBackward:
		champions, err = backwardChampions(X, y, c)
		if err != nil {
			return err
		}
	default:
		return smErrors.NewValidationError("strategy", "unknown subset strategy", int(sr.Strategy))
	}

	// Mallows' Cp scores every candidate against the full model's error
	// variance estimate.
	var sigma2Full float64
	if sr.Criterion == metrics.CriterionCp {
		_, _, rssFull, fitErr := solveLeastSquares(X, y, nil)
		if fitErr != nil {
			return fitErr
		}
		sigma2Full, err = metrics.FullModelVariance(rssFull, r, c)
		if err != nil {
			return err
		}
	}

	tss := totalSumOfSquares(y)
	best := sr.Criterion.Worst()
	var bestCols []int
	for size := 1; size <= c; size++ {
		cand := champions[size]
		if cand.cols == nil {
			continue
		}
		score, scoreErr := sr.scoreCandidate(cand.rss, tss, sigma2Full, r, size)
		if scoreErr != nil {
			// A size whose criterion is undefined drops out of the race.
			continue
		}
		if sr.Criterion.Better(score, best) {
			best = score
			bestCols = cand.cols
		}
	}
	if bestCols == nil {
		return smErrors.NewValueError("SubsetRegression.Fit", "no candidate subset could be scored")
	}

	support := append([]int(nil), bestCols...)
	sort.Ints(support)

	weights, intercept, _, err := solveLeastSquares(X, y, support)
	if err != nil {
		return err
	}

	sr.Support = support
	sr.Weights = weights
	sr.Intercept = intercept
	sr.BestScore = best
	sr.NFeatures = c

	sr.State.SetFitted()
	sr.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if sr.logger != nil {
		sr.logger.Info("Subset search completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			"strategy", sr.Strategy.String(),
			"criterion", sr.Criterion.String(),
			"subset_size", len(support),
			"score", best,
		)
	}

	return nil
}

// exhaustiveChampions scores every non-empty subset and keeps the lowest-RSS
// candidate per size. The mask range is chunked across workers, each keeping
// local champions that are merged at the end.
func exhaustiveChampions(X, y mat.Matrix, p int) []candidate {
	champions := newChampionTable(p)
	total := (1 << p) - 1

	var mu sync.Mutex
	parallel.Parallelize(total, func(start, end int) {
		local := newChampionTable(p)
		for m := start; m < end; m++ {
			mask := m + 1
			size := bits.OnesCount(uint(mask))
			cols := colsFromMask(mask, p)
			_, _, rss, err := solveLeastSquares(X, y, cols)
			if err != nil {
				// Rank-deficient candidate, e.g. duplicated columns.
				continue
			}
			if rss < local[size].rss {
				local[size] = candidate{cols: cols, rss: rss}
			}
		}
		mu.Lock()
		for size := 1; size <= p; size++ {
			if local[size].cols != nil && local[size].rss < champions[size].rss {
				champions[size] = local[size]
			}
		}
		mu.Unlock()
	})

	return champions
}

// forwardChampions grows the subset greedily, recording the path's candidate
// at each size.
func forwardChampions(X, y mat.Matrix, p int) []candidate {
	champions := newChampionTable(p)

	selected := make([]int, 0, p)
	remaining := make([]int, p)
	for j := range remaining {
		remaining[j] = j
	}

	for len(remaining) > 0 {
		rssByChoice := make([]float64, len(remaining))
		_ = parallel.ParallelizeIndexed(len(remaining), func(i int) error {
			cols := append(append([]int(nil), selected...), remaining[i])
			_, _, rss, err := solveLeastSquares(X, y, cols)
			if err != nil {
				rssByChoice[i] = math.Inf(1)
				return nil
			}
			rssByChoice[i] = rss
			return nil
		})

		bestIdx := -1
		bestRSS := math.Inf(1)
		for i, rss := range rssByChoice {
			if rss < bestRSS {
				bestRSS = rss
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		champions[len(selected)] = candidate{
			cols: append([]int(nil), selected...),
			rss:  bestRSS,
		}
	}

	return champions
}

// backwardChampions shrinks the subset greedily from the full model.
func backwardChampions(X, y mat.Matrix, p int) ([]candidate, error) {
	champions := newChampionTable(p)

	selected := make([]int, p)
	for j := range selected {
		selected[j] = j
	}

	_, _, rssFull, err := solveLeastSquares(X, y, selected)
	if err != nil {
		return nil, err
	}
	champions[p] = candidate{cols: append([]int(nil), selected...), rss: rssFull}

	for len(selected) > 1 {
		rssByChoice := make([]float64, len(selected))
		_ = parallel.ParallelizeIndexed(len(selected), func(i int) error {
			cols := make([]int, 0, len(selected)-1)
			cols = append(cols, selected[:i]...)
			cols = append(cols, selected[i+1:]...)
			_, _, rss, err := solveLeastSquares(X, y, cols)
			if err != nil {
				rssByChoice[i] = math.Inf(1)
				return nil
			}
			rssByChoice[i] = rss
			return nil
		})

		dropIdx := -1
		bestRSS := math.Inf(1)
		for i, rss := range rssByChoice {
			if rss < bestRSS {
				bestRSS = rss
				dropIdx = i
			}
		}
		if dropIdx < 0 {
			break
		}

		selected = append(selected[:dropIdx], selected[dropIdx+1:]...)
		champions[len(selected)] = candidate{
			cols: append([]int(nil), selected...),
			rss:  bestRSS,
		}
	}

	return champions, nil
}

// newChampionTable allocates per-size slots 0..p with infinite RSS.
func newChampionTable(p int) []candidate {
	champions := make([]candidate, p+1)
	for i := range champions {
		champions[i].rss = math.Inf(1)
	}
	return champions
}

// colsFromMask expands a feature bitmask into ascending column indices.
func colsFromMask(mask, p int) []int {
	cols := make([]int, 0, bits.OnesCount(uint(mask)))
	for j := 0; j < p; j++ {
		if mask&(1<<j) != 0 {
			cols = append(cols, j)
		}
	}
	return cols
}

// scoreCandidate evaluates the selection criterion for one per-size champion.
func (sr *SubsetRegression) scoreCandidate(rss, tss, sigma2Full float64, n, size int) (float64, error) {
	switch sr.Criterion {
	case metrics.CriterionR2:
		return metrics.RSquaredFromRSS(rss, tss)
	case metrics.CriterionAdjR2:
		return metrics.AdjustedR2(rss, tss, n, size)
	case metrics.CriterionCp:
		return metrics.MallowsCp(rss, sigma2Full, n, size)
	case metrics.CriterionBIC:
		return metrics.BIC(rss, n, size)
	default:
		return 0, smErrors.NewValidationError("criterion", "unknown criterion", int(sr.Criterion))
	}
}

// Predict generates predictions from the selected feature subset.
//
// X must carry the full training feature layout; columns outside the support
// are ignored.
//
// Errors:
//   - NotFittedError: if the model hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (sr *SubsetRegression) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "SubsetRegression.Predict")
	if !sr.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("SubsetRegression", "Predict")
	}

	r, c := X.Dims()
	if c != sr.NFeatures {
		return nil, smErrors.NewDimensionError("SubsetRegression.Predict", sr.NFeatures, c, 1)
	}

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := sr.Intercept
		for j, col := range sr.Support {
			pred += X.At(i, col) * sr.Weights.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}

	return predictions, nil
}

// GetWeights returns the coefficients expanded to the full feature layout,
// with zeros outside the selected support.
func (sr *SubsetRegression) GetWeights() []float64 {
	if sr.Weights == nil {
		return nil
	}

	weights := make([]float64, sr.NFeatures)
	for j, col := range sr.Support {
		weights[col] = sr.Weights.AtVec(j)
	}
	return weights
}

// GetIntercept returns the learned intercept
func (sr *SubsetRegression) GetIntercept() float64 {
	if !sr.State.IsFitted() {
		return 0
	}
	return sr.Intercept
}

// SelectedFeatures returns a copy of the selected column indices, ascending.
func (sr *SubsetRegression) SelectedFeatures() []int {
	if sr.Support == nil {
		return nil
	}
	out := make([]int, len(sr.Support))
	copy(out, sr.Support)
	return out
}

// IsFitted returns whether the model has been fitted.
func (sr *SubsetRegression) IsFitted() bool {
	return sr.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (sr *SubsetRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"strategy":    sr.Strategy.String(),
		"criterion":   sr.Criterion.String(),
		"subset_size": len(sr.Support),
		"fitted":      sr.State.IsFitted(),
	}
}

// SetParams sets the model's hyperparameters.
func (sr *SubsetRegression) SetParams(params map[string]interface{}) error {
	if v, ok := params["strategy"]; ok {
		s, ok := v.(string)
		if !ok {
			return smErrors.NewValidationError("strategy", "must be a string", v)
		}
		strategy, err := ParseSubsetStrategy(s)
		if err != nil {
			return err
		}
		sr.Strategy = strategy
	}
	if v, ok := params["criterion"]; ok {
		s, ok := v.(string)
		if !ok {
			return smErrors.NewValidationError("criterion", "must be a string", v)
		}
		criterion, err := metrics.ParseCriterion(s)
		if err != nil {
			return err
		}
		sr.Criterion = criterion
	}
	return nil
}
