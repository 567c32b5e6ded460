// Model selection criteria for best-subset search.
//
// Each criterion scores a candidate submodel from its residual sum of
// squares and size. R² and adjusted R² are maximized; Mallows' Cp and BIC
// are minimized. Plain R² never penalizes added predictors, so a search
// driven by it picks the largest candidate; the penalized criteria trade
// fit against size.

package metrics

import (
	"math"
	"strings"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// Criterion identifies a subset selection criterion.
type Criterion int

const (
	// CriterionR2 scores by the coefficient of determination. Monotone in
	// subset size, so it always selects the largest candidate.
	CriterionR2 Criterion = iota

	// CriterionAdjR2 scores by adjusted R², which penalizes added
	// predictors through the residual degrees of freedom.
	CriterionAdjR2

	// CriterionCp scores by Mallows' Cp against the full model's error
	// variance estimate.
	CriterionCp

	// CriterionBIC scores by the Bayesian information criterion, whose
	// log(n) penalty grows faster than Cp's constant 2.
	CriterionBIC
)

// String returns the conventional name of the criterion.
func (c Criterion) String() string {
	switch c {
	case CriterionR2:
		return "r2"
	case CriterionAdjR2:
		return "adjr2"
	case CriterionCp:
		return "cp"
	case CriterionBIC:
		return "bic"
	default:
		return "unknown"
	}
}

// ParseCriterion converts a configuration string into a Criterion.
func ParseCriterion(s string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r2":
		return CriterionR2, nil
	case "adjr2", "adj_r2", "adjusted_r2":
		return CriterionAdjR2, nil
	case "cp", "mallows_cp":
		return CriterionCp, nil
	case "bic":
		return CriterionBIC, nil
	default:
		return 0, smErrors.NewValidationError("criterion", "must be one of r2, adjr2, cp, bic", s)
	}
}

// Maximize reports whether higher scores are better under this criterion.
func (c Criterion) Maximize() bool {
	return c == CriterionR2 || c == CriterionAdjR2
}

// Better reports whether score a beats score b under this criterion.
func (c Criterion) Better(a, b float64) bool {
	if c.Maximize() {
		return a > b
	}
	return a < b
}

// Worst returns the score every candidate beats under this criterion.
func (c Criterion) Worst() float64 {
	if c.Maximize() {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

// RSquaredFromRSS computes R² = 1 - RSS/TSS from precomputed sums of squares.
func RSquaredFromRSS(rss, tss float64) (float64, error) {
	if tss <= 0 {
		return 0, smErrors.NewValueError("RSquaredFromRSS", "total sum of squares must be positive")
	}
	if rss < 0 {
		return 0, smErrors.NewValueError("RSquaredFromRSS", "residual sum of squares cannot be negative")
	}
	return 1 - rss/tss, nil
}

// AdjustedR2 computes adjusted R² for a submodel with p predictors fitted on
// n samples:
//
//	adjR² = 1 - (RSS/(n-p-1)) / (TSS/(n-1))
//
// The intercept is not counted in p.
func AdjustedR2(rss, tss float64, n, p int) (float64, error) {
	if tss <= 0 {
		return 0, smErrors.NewValueError("AdjustedR2", "total sum of squares must be positive")
	}
	if rss < 0 {
		return 0, smErrors.NewValueError("AdjustedR2", "residual sum of squares cannot be negative")
	}
	if n-p-1 <= 0 {
		return 0, smErrors.NewDegenerateFitError("AdjustedR2", n, p+1)
	}
	if n < 2 {
		return 0, smErrors.NewValueError("AdjustedR2", "need at least 2 samples")
	}
	return 1 - (rss/float64(n-p-1))/(tss/float64(n-1)), nil
}

// MallowsCp computes Mallows' Cp for a submodel with p predictors on n
// samples:
//
//	Cp = RSS/σ̂² - n + 2(p+1)
//
// sigma2Full is the error variance estimate from the full model,
// RSS_full/(n - p_full - 1).
func MallowsCp(rss, sigma2Full float64, n, p int) (float64, error) {
	if sigma2Full <= 0 {
		return 0, smErrors.NewValueError("MallowsCp", "full-model variance estimate must be positive")
	}
	if rss < 0 {
		return 0, smErrors.NewValueError("MallowsCp", "residual sum of squares cannot be negative")
	}
	return rss/sigma2Full - float64(n) + 2*float64(p+1), nil
}

// BIC computes the Bayesian information criterion for a Gaussian linear
// model with p predictors plus intercept on n samples:
//
//	BIC = n·log(RSS/n) + (p+1)·log(n)
//
// An exact fit (RSS = 0) returns -Inf and dominates every other candidate.
func BIC(rss float64, n, p int) (float64, error) {
	if n <= 0 {
		return 0, smErrors.NewValueError("BIC", "need at least 1 sample")
	}
	if rss < 0 {
		return 0, smErrors.NewValueError("BIC", "residual sum of squares cannot be negative")
	}
	if rss == 0 {
		return math.Inf(-1), nil
	}
	nf := float64(n)
	return nf*math.Log(rss/nf) + float64(p+1)*math.Log(nf), nil
}

// FullModelVariance computes the error variance estimate σ̂² used by
// Mallows' Cp, RSS_full/(n - p_full - 1).
func FullModelVariance(rssFull float64, n, pFull int) (float64, error) {
	df := n - pFull - 1
	if df <= 0 {
		return 0, smErrors.NewDegenerateFitError("FullModelVariance", n, pFull+1)
	}
	if rssFull < 0 {
		return 0, smErrors.NewValueError("FullModelVariance", "residual sum of squares cannot be negative")
	}
	return rssFull / float64(df), nil
}
