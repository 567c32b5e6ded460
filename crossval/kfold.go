// Package crossval partitions observations into folds and drives the nested
// cross-validation loop the benchmark is built around. Fold assignment is a
// pure function of (n, k, seed), so a run can be reproduced exactly and every
// algorithm is scored on identical splits.
package crossval

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// Fold is one train/test partition. Both index slices are ascending and
// disjoint, and together cover the full index range the fold was built over.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// Assign returns one fold id in [0, k) per observation. Fold sizes differ by
// at most one, and the assignment is deterministic for fixed (n, k, seed).
func Assign(n, k int, seed int64) ([]int, error) {
	if n < 1 {
		return nil, smErrors.NewValidationError("n", "must be positive", n)
	}
	if k < 2 {
		return nil, smErrors.NewValidationError("k", "must be at least 2", k)
	}
	if k > n {
		return nil, smErrors.NewValidationError("k", "cannot exceed the number of observations", k)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	// Walk the shuffled order in contiguous chunks; the first n%k folds
	// absorb the remainder.
	ids := make([]int, n)
	foldSize := n / k
	remainder := n % k
	pos := 0
	for fold := 0; fold < k; fold++ {
		size := foldSize
		if fold < remainder {
			size++
		}
		for j := 0; j < size; j++ {
			ids[indices[pos]] = fold
			pos++
		}
	}
	return ids, nil
}

// Split builds the k train/test folds over observations [0, n). Fold f's test
// side holds exactly the observations Assign maps to f.
func Split(n, k int, seed int64) ([]Fold, error) {
	ids, err := Assign(n, k, seed)
	if err != nil {
		return nil, err
	}

	folds := make([]Fold, k)
	for i, fold := range ids {
		folds[fold].TestIndices = append(folds[fold].TestIndices, i)
		for g := 0; g < k; g++ {
			if g != fold {
				folds[g].TrainIndices = append(folds[g].TrainIndices, i)
			}
		}
	}
	return folds, nil
}

// Subset copies the selected rows of X and the matching entries of y into
// fresh matrices. Rows appear in the order the indices are given.
func Subset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.VecDense, error) {
	if len(indices) == 0 {
		return nil, nil, smErrors.NewValueError("crossval.Subset", "empty index set")
	}
	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return nil, nil, smErrors.NewDimensionError("crossval.Subset", rows, yRows, 0)
	}

	Xs := mat.NewDense(len(indices), cols, nil)
	ys := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		if idx < 0 || idx >= rows {
			return nil, nil, smErrors.NewValueError("crossval.Subset", "index out of range")
		}
		for j := 0; j < cols; j++ {
			Xs.Set(i, j, X.At(idx, j))
		}
		ys.SetVec(i, y.At(idx, 0))
	}
	return Xs, ys, nil
}
