package tree

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	"github.com/soundmind-ml/soundmind/crossval"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// PruneTo collapses internal nodes of the fitted tree in weakest-link
// order until at most leaves leaves remain.
//
// Each step removes the internal node whose collapse raises the training
// error least per removed leaf, which yields the nested subtree sequence
// of cost-complexity pruning. Because a collapse can remove several leaves
// at once, the result may be smaller than requested when the exact size is
// not in the sequence.
//
// Parameters:
//   - leaves: Upper bound on the number of leaves to keep
//
// Returns:
//   - error: nil if pruning succeeds, otherwise an error describing the failure
//
// Errors:
//   - NotFittedError: if the tree hasn't been trained yet
//   - ValidationError: if leaves is not positive
func (rt *Regressor) PruneTo(leaves int) (err error) {
	defer smErrors.Recover(&err, "Regressor.PruneTo")
	if !rt.State.IsFitted() {
		return smErrors.NewNotFittedError("Regressor", "PruneTo")
	}
	if leaves < 1 {
		return smErrors.NewValidationError("leaves", "must be at least 1", leaves)
	}

	before := countLeaves(rt.root)
	rt.pruneRoot(leaves)
	rt.importances = importancesOf(rt.root, rt.nFeatures)

	if rt.logger != nil {
		rt.logger.Debug("Pruning completed",
			"leaves_before", before,
			"leaves_after", countLeaves(rt.root),
		)
	}
	return nil
}

// pruneRoot collapses weakest links until the tree has at most target
// leaves.
func (rt *Regressor) pruneRoot(target int) {
	for countLeaves(rt.root) > target {
		weakest := weakestLink(rt.root)
		if weakest == nil {
			return
		}
		collapse(weakest)
	}
}

// weakestLink returns the internal node whose collapse costs the least
// training error per removed leaf, or nil when the tree is a single leaf.
//
// For an internal node t with subtree error R(T_t) over L leaves, the link
// strength is (R(t) - R(T_t)) / (L - 1), with R measured as the sum of
// squared errors. Subtree sums are carried up a single post-order walk, and
// a strict comparison keeps the first minimum encountered.
func weakestLink(root *Node) *Node {
	if root == nil || root.IsLeaf {
		return nil
	}

	var best *Node
	bestG := math.Inf(1)

	var walk func(node *Node) (sse float64, leaves int)
	walk = func(node *Node) (float64, int) {
		if node.IsLeaf {
			return float64(node.NSamples) * node.Impurity, 1
		}
		leftSSE, leftLeaves := walk(node.Left)
		rightSSE, rightLeaves := walk(node.Right)
		sse := leftSSE + rightSSE
		leaves := leftLeaves + rightLeaves

		g := (float64(node.NSamples)*node.Impurity - sse) / float64(leaves-1)
		if g < bestG {
			bestG = g
			best = node
		}
		return sse, leaves
	}
	walk(root)

	return best
}

// collapse turns an internal node into a leaf predicting its own mean.
func collapse(node *Node) {
	node.IsLeaf = true
	node.Left = nil
	node.Right = nil
}

// pruneSequence collapses the tree step by step and returns every subtree
// size on the way down, in ascending order from 1 to the full leaf count.
// The tree is consumed in the process.
func pruneSequence(root *Node) []int {
	sizes := []int{countLeaves(root)}
	for {
		weakest := weakestLink(root)
		if weakest == nil {
			break
		}
		collapse(weakest)
		sizes = append(sizes, countLeaves(root))
	}

	for i, j := 0, len(sizes)-1; i < j; i, j = i+1, j-1 {
		sizes[i], sizes[j] = sizes[j], sizes[i]
	}
	return sizes
}

// Tune selects the pruned tree size by cross-validation and configures the
// receiver with the winner, so the next Fit grows and prunes to it.
//
// A reference tree grown on all of (X, y) supplies the candidate sizes:
// the leaf counts of its weakest-link subtree sequence. Each candidate is
// scored by growing and pruning a tree per inner fold, and candidates run
// from smallest to largest so ties resolve toward the simpler tree.
func (rt *Regressor) Tune(X, y mat.Matrix, folds []crossval.Fold) (crossval.Choice, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return crossval.Choice{}, smErrors.NewModelError("Regressor.Tune", "empty data", smErrors.ErrEmptyData)
	}
	if len(folds) == 0 {
		return crossval.Choice{}, smErrors.NewValidationError("folds", "needs at least one inner fold", 0)
	}

	reference := NewRegressor(rt.growthOptions()...)
	if err := reference.Fit(X, y); err != nil {
		return crossval.Choice{}, err
	}
	sizes := pruneSequence(reference.root)

	candidates := make([]float64, len(sizes))
	for i, size := range sizes {
		candidates[i] = float64(size)
	}

	choice, err := crossval.TuneGrid("leaves", candidates, X, y, folds, func(value float64) (model.Regressor, error) {
		options := append(rt.growthOptions(), WithTargetLeaves(int(value)))
		return NewRegressor(options...), nil
	})
	if err != nil {
		return crossval.Choice{}, err
	}

	rt.targetLeaves = int(choice.Value)
	return choice, nil
}

// growthOptions reproduces the receiver's growth settings without any
// pruning target.
func (rt *Regressor) growthOptions() []RegressorOption {
	return []RegressorOption{
		WithMaxDepth(rt.maxDepth),
		WithMinSamplesSplit(rt.minSamplesSplit),
		WithMinSamplesLeaf(rt.minSamplesLeaf),
		WithMaxFeatures(rt.maxFeatures),
		WithSeed(rt.seed),
	}
}
