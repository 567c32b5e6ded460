// Package tree provides a regression tree grown by recursive binary
// splitting on variance reduction, together with weakest-link
// cost-complexity pruning.
//
// The tree grows until its stopping limits are reached; prediction at a
// leaf is the mean response of the training observations routed there.
// PruneTo collapses internal nodes in weakest-link order, and Tune picks
// the pruned size by inner cross-validation.
//
// Example usage:
//
//	rt := tree.NewRegressor(tree.WithMinSamplesLeaf(5))
//	err := rt.Fit(X, y)
//	if err != nil {
//		log.Fatal(err)
//	}
//	predictions, err := rt.Predict(XTest)
package tree

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// Node represents a single node in the regression tree.
type Node struct {
	// IsLeaf indicates whether this node is a leaf node
	IsLeaf bool

	// Feature is the index of the feature used for splitting (internal nodes only)
	Feature int

	// Threshold is the split threshold; samples with feature value <= Threshold go left
	Threshold float64

	// Left child node (samples with feature value <= Threshold)
	Left *Node

	// Right child node (samples with feature value > Threshold)
	Right *Node

	// Value is the mean response of the training samples at this node
	Value float64

	// Impurity is the variance of the responses at this node
	Impurity float64

	// NSamples is the number of training samples at this node
	NSamples int

	// Depth of this node in the tree (root is 0)
	Depth int
}

// Regressor is a decision tree for regression.
//
// Splits minimize the weighted variance of the response in the two child
// nodes. Growth is unlimited by default and controlled through functional
// options; a grown tree can be cut back with PruneTo.
type Regressor struct {
	State *model.StateManager // State manager (composition instead of embedding)

	// Hyperparameters
	maxDepth        int   // Maximum tree depth (0 = unlimited)
	minSamplesSplit int   // Minimum samples required to split a node
	minSamplesLeaf  int   // Minimum samples required in each leaf
	maxFeatures     int   // Features considered per split (0 = all)
	seed            int64 // Seed for the per-split feature draw
	targetLeaves    int   // Prune to this many leaves after growing (0 = no pruning)

	// Model state
	root        *Node
	nFeatures   int
	importances []float64
	rng         *rand.Rand

	logger log.Logger // Logger instance
}

// RegressorOption configures a Regressor.
type RegressorOption func(*Regressor)

// WithMaxDepth sets the maximum depth of the tree. Zero means unlimited.
func WithMaxDepth(depth int) RegressorOption {
	return func(rt *Regressor) {
		rt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split
// an internal node.
func WithMinSamplesSplit(n int) RegressorOption {
	return func(rt *Regressor) {
		rt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required in each
// leaf node.
func WithMinSamplesLeaf(n int) RegressorOption {
	return func(rt *Regressor) {
		rt.minSamplesLeaf = n
	}
}

// WithMaxFeatures limits how many features are considered at each split.
// The subset is redrawn uniformly at random for every split, which is how
// the random forest decorrelates its trees. Zero considers every feature.
func WithMaxFeatures(n int) RegressorOption {
	return func(rt *Regressor) {
		rt.maxFeatures = n
	}
}

// WithSeed sets the seed for the per-split feature draw. It has no effect
// unless WithMaxFeatures restricts the split to a subset.
func WithSeed(seed int64) RegressorOption {
	return func(rt *Regressor) {
		rt.seed = seed
	}
}

// WithTargetLeaves prunes the grown tree back to at most n leaves using
// weakest-link cost-complexity pruning. Zero keeps the full tree.
func WithTargetLeaves(n int) RegressorOption {
	return func(rt *Regressor) {
		rt.targetLeaves = n
	}
}

// NewRegressor creates a new regression tree.
//
// By default the tree grows without a depth limit, splits any node with at
// least two samples, and allows single-sample leaves.
//
// Parameters:
//   - options: Configuration options for the tree
//
// Returns:
//   - *Regressor: A new untrained regression tree
//
// Example:
//
//	rt := tree.NewRegressor(
//		tree.WithMaxDepth(4),
//		tree.WithMinSamplesLeaf(5),
//	)
func NewRegressor(options ...RegressorOption) *Regressor {
	rt := &Regressor{
		State:           model.NewStateManager(),
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}

	for _, opt := range options {
		opt(rt)
	}

	// Set up logger with model context
	rt.logger = log.GetLoggerWithName("tree").With(
		log.ModelNameKey, "RegressionTree",
		log.ComponentKey, "tree",
	)

	return rt
}

// Fit grows the regression tree on the provided data.
//
// The tree is built by recursive binary splitting: each node picks the
// feature and threshold that maximize the reduction in response variance,
// and recursion stops when a node is pure, too small, or at the depth
// limit. When a pruning target was configured, the grown tree is collapsed
// to that size before Fit returns.
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
func (rt *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer smErrors.Recover(&err, "Regressor.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	if rt.logger != nil {
		rt.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, r,
			log.FeaturesKey, c,
		)
	}

	if r == 0 || c == 0 {
		return smErrors.NewModelError("Regressor.Fit", "empty data", smErrors.ErrEmptyData)
	}

	if ry != r {
		return smErrors.NewDimensionError("Regressor.Fit", r, ry, 0)
	}

	if cy != 1 {
		return smErrors.NewValueError("Regressor.Fit", "y must be a column vector")
	}

	if rt.minSamplesSplit < 2 {
		return smErrors.NewValidationError("min_samples_split", "must be at least 2", rt.minSamplesSplit)
	}

	if rt.minSamplesLeaf < 1 {
		return smErrors.NewValidationError("min_samples_leaf", "must be at least 1", rt.minSamplesLeaf)
	}

	if rt.maxDepth < 0 {
		return smErrors.NewValidationError("max_depth", "must not be negative", rt.maxDepth)
	}

	if rt.maxFeatures < 0 || rt.maxFeatures > c {
		return smErrors.NewValidationError("max_features", "must be between 0 and the feature count", rt.maxFeatures)
	}

	if rt.targetLeaves < 0 {
		return smErrors.NewValidationError("target_leaves", "must not be negative", rt.targetLeaves)
	}

	Xd := mat.DenseCopyOf(X)
	yv := make([]float64, r)
	for i := 0; i < r; i++ {
		yv[i] = y.At(i, 0)
	}

	rt.nFeatures = c
	if rt.maxFeatures > 0 && rt.maxFeatures < c {
		rt.rng = rand.New(rand.NewPCG(uint64(rt.seed), uint64(rt.seed)))
	} else {
		rt.rng = nil
	}

	indices := make([]int, r)
	for i := range indices {
		indices[i] = i
	}

	rt.root = rt.buildNode(Xd, yv, indices, 0)

	if rt.targetLeaves > 0 {
		rt.pruneRoot(rt.targetLeaves)
	}

	rt.importances = importancesOf(rt.root, c)

	// Set model as fitted
	rt.State.SetFitted()
	rt.State.SetDimensions(c, r)

	duration := time.Since(startTime)
	if rt.logger != nil {
		rt.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, duration.Milliseconds(),
			log.SamplesKey, r,
			log.FeaturesKey, c,
			"leaves", countLeaves(rt.root),
			"depth", maxDepthOf(rt.root),
		)
	}

	return nil
}

// buildNode recursively grows the subtree for the samples in indices.
func (rt *Regressor) buildNode(X *mat.Dense, y []float64, indices []int, depth int) *Node {
	n := len(indices)

	var sum, sumSq float64
	for _, idx := range indices {
		sum += y[idx]
		sumSq += y[idx] * y[idx]
	}
	mean := sum / float64(n)
	impurity := math.Max(0, sumSq/float64(n)-mean*mean)

	node := &Node{
		Value:    mean,
		Impurity: impurity,
		NSamples: n,
		Depth:    depth,
	}

	if rt.shouldStop(n, impurity, depth) {
		node.IsLeaf = true
		return node
	}

	feature, threshold, ok := rt.bestSplit(X, y, indices, impurity)
	if !ok {
		node.IsLeaf = true
		return node
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, idx := range indices {
		if X.At(idx, feature) <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = rt.buildNode(X, y, left, depth+1)
	node.Right = rt.buildNode(X, y, right, depth+1)

	return node
}

// shouldStop reports whether a node must become a leaf without splitting.
func (rt *Regressor) shouldStop(nSamples int, impurity float64, depth int) bool {
	if rt.maxDepth > 0 && depth >= rt.maxDepth {
		return true
	}
	if nSamples < rt.minSamplesSplit {
		return true
	}
	if impurity <= 0 {
		return true
	}
	return false
}

// bestSplit finds the split maximizing the variance reduction over the
// candidate features. Each feature is sorted once and scanned with running
// sums, so every midpoint between distinct adjacent values is scored in
// constant time. Returns ok=false when no split improves on the parent.
func (rt *Regressor) bestSplit(X *mat.Dense, y []float64, indices []int, parentImpurity float64) (int, float64, bool) {
	n := len(indices)

	var totalSum, totalSq float64
	for _, idx := range indices {
		totalSum += y[idx]
		totalSq += y[idx] * y[idx]
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestDecrease := 0.0

	values := make([]float64, n)
	order := make([]int, n)

	for _, feature := range rt.splitFeatures() {
		for i, idx := range indices {
			values[i] = X.At(idx, feature)
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return values[order[a]] < values[order[b]]
		})

		var sumL, sqL float64
		for i := 0; i < n-1; i++ {
			v := y[indices[order[i]]]
			sumL += v
			sqL += v * v

			// Only cut between distinct adjacent values
			if values[order[i]] == values[order[i+1]] {
				continue
			}

			nL := i + 1
			nR := n - nL
			if nL < rt.minSamplesLeaf || nR < rt.minSamplesLeaf {
				continue
			}

			meanL := sumL / float64(nL)
			varL := sqL/float64(nL) - meanL*meanL
			sumR := totalSum - sumL
			sqR := totalSq - sqL
			meanR := sumR / float64(nR)
			varR := sqR/float64(nR) - meanR*meanR

			weighted := (float64(nL)*varL + float64(nR)*varR) / float64(n)
			decrease := parentImpurity - weighted
			if decrease > bestDecrease {
				bestDecrease = decrease
				bestFeature = feature
				bestThreshold = (values[order[i]] + values[order[i+1]]) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// splitFeatures returns the feature indices to consider for one split:
// all of them, or a fresh random subset when maxFeatures restricts the
// search. The subset is sorted so ties between features stay resolved by
// column order.
func (rt *Regressor) splitFeatures() []int {
	if rt.rng == nil {
		features := make([]int, rt.nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}

	perm := rt.rng.Perm(rt.nFeatures)
	subset := append([]int(nil), perm[:rt.maxFeatures]...)
	sort.Ints(subset)
	return subset
}

// Predict generates predictions for the input feature matrix.
//
// Each sample is routed from the root to a leaf by its feature values, and
// the leaf's mean response is returned.
//
// Parameters:
//   - X: Feature matrix of shape (n_samples, n_features)
//
// Returns:
//   - mat.Matrix: Prediction matrix of shape (n_samples, 1)
//   - error: nil if prediction succeeds, otherwise an error describing the failure
//
// Errors:
//   - NotFittedError: if the tree hasn't been trained yet
//   - DimensionError: if X has a different number of features than the training data
func (rt *Regressor) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "Regressor.Predict")
	if !rt.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("Regressor", "Predict")
	}

	r, c := X.Dims()
	if c != rt.nFeatures {
		return nil, smErrors.NewDimensionError("Regressor.Predict", rt.nFeatures, c, 1)
	}

	if rt.logger != nil {
		rt.logger.Debug("Prediction started",
			log.OperationKey, log.OperationPredict,
			log.PhaseKey, log.PhaseInference,
			log.SamplesKey, r,
			log.FeaturesKey, c,
		)
	}

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		node := rt.root
		for !node.IsLeaf {
			if X.At(i, node.Feature) <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		predictions.Set(i, 0, node.Value)
	}

	if rt.logger != nil {
		rt.logger.Debug("Prediction completed",
			log.OperationKey, log.OperationPredict,
			log.PredsKey, r,
		)
	}

	return predictions, nil
}

// FeatureImportances returns the normalized impurity-based importance of
// each feature. A feature's importance is the total weighted variance
// reduction from the splits that use it; importances sum to 1 when the
// tree made any split.
//
// Errors:
//   - NotFittedError: if the tree hasn't been trained yet
func (rt *Regressor) FeatureImportances() ([]float64, error) {
	if !rt.State.IsFitted() {
		return nil, smErrors.NewNotFittedError("Regressor", "FeatureImportances")
	}

	out := make([]float64, len(rt.importances))
	copy(out, rt.importances)
	return out, nil
}

// importancesOf walks the tree and accumulates the weighted impurity
// decrease of every internal node on its split feature, normalized to sum
// to 1.
func importancesOf(root *Node, nFeatures int) []float64 {
	importances := make([]float64, nFeatures)

	var walk func(node *Node)
	walk = func(node *Node) {
		if node == nil || node.IsLeaf {
			return
		}
		decrease := float64(node.NSamples)*node.Impurity -
			float64(node.Left.NSamples)*node.Left.Impurity -
			float64(node.Right.NSamples)*node.Right.Impurity
		if decrease > 0 {
			importances[node.Feature] += decrease
		}
		walk(node.Left)
		walk(node.Right)
	}
	walk(root)

	var total float64
	for _, imp := range importances {
		total += imp
	}
	if total > 0 {
		for i := range importances {
			importances[i] /= total
		}
	}

	return importances
}

// GetDepth returns the depth of the fitted tree. A single-leaf tree has
// depth 0.
func (rt *Regressor) GetDepth() int {
	if !rt.State.IsFitted() {
		return 0
	}
	return maxDepthOf(rt.root)
}

// GetNLeaves returns the number of leaves in the fitted tree.
func (rt *Regressor) GetNLeaves() int {
	if !rt.State.IsFitted() {
		return 0
	}
	return countLeaves(rt.root)
}

// maxDepthOf returns the depth of the deepest node under node.
func maxDepthOf(node *Node) int {
	if node == nil || node.IsLeaf {
		return 0
	}
	left := maxDepthOf(node.Left)
	right := maxDepthOf(node.Right)
	if left > right {
		return left + 1
	}
	return right + 1
}

// countLeaves returns the number of leaves under node.
func countLeaves(node *Node) int {
	if node == nil {
		return 0
	}
	if node.IsLeaf {
		return 1
	}
	return countLeaves(node.Left) + countLeaves(node.Right)
}

// IsFitted returns whether the tree has been fitted.
func (rt *Regressor) IsFitted() bool {
	return rt.State.IsFitted()
}

// GetParams returns the tree's hyperparameters.
func (rt *Regressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         rt.maxDepth,
		"min_samples_split": rt.minSamplesSplit,
		"min_samples_leaf":  rt.minSamplesLeaf,
		"max_features":      rt.maxFeatures,
		"seed":              rt.seed,
		"target_leaves":     rt.targetLeaves,
	}
}

// SetParams sets the tree's hyperparameters.
func (rt *Regressor) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "max_depth":
			v, ok := toInt(value)
			if !ok || v < 0 {
				return smErrors.NewValidationError("max_depth", "must be a non-negative integer", value)
			}
			rt.maxDepth = v
		case "min_samples_split":
			v, ok := toInt(value)
			if !ok || v < 2 {
				return smErrors.NewValidationError("min_samples_split", "must be an integer of at least 2", value)
			}
			rt.minSamplesSplit = v
		case "min_samples_leaf":
			v, ok := toInt(value)
			if !ok || v < 1 {
				return smErrors.NewValidationError("min_samples_leaf", "must be a positive integer", value)
			}
			rt.minSamplesLeaf = v
		case "max_features":
			v, ok := toInt(value)
			if !ok || v < 0 {
				return smErrors.NewValidationError("max_features", "must be a non-negative integer", value)
			}
			rt.maxFeatures = v
		case "seed":
			v, ok := toInt(value)
			if !ok {
				return smErrors.NewValidationError("seed", "must be an integer", value)
			}
			rt.seed = int64(v)
		case "target_leaves":
			v, ok := toInt(value)
			if !ok || v < 0 {
				return smErrors.NewValidationError("target_leaves", "must be a non-negative integer", value)
			}
			rt.targetLeaves = v
		default:
			return smErrors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// toInt coerces the numeric types that reach SetParams through JSON or
// literal maps.
func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
