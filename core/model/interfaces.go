package model

import (
	"gonum.org/v1/gonum/mat"
)

// Regressor is the contract every benchmark algorithm satisfies. Fit trains
// on a feature matrix of shape (n_samples, n_features) and a target of shape
// (n_samples, 1); Predict returns predictions of shape (n_samples, 1).
type Regressor interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImporter is implemented by fitted models that can attribute
// predictive contribution to input features. Importances are non-negative
// and sum to 1 when any split was made.
type FeatureImporter interface {
	FeatureImportances() ([]float64, error)
}
