package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/soundmind-ml/soundmind/core/model"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// OrdinalEncoder maps ordered string levels to consecutive numeric codes.
// The level order is fixed by the caller, not learned from data: the survey
// frequency scale is a schema fact, and inferring it from whichever levels
// happen to appear would scramble the ordering.
type OrdinalEncoder struct {
	model.BaseEstimator

	// Levels holds the ordered levels; Levels[i] encodes to float64(i)
	Levels []string

	levelToCode map[string]float64
}

// NewOrdinalEncoder creates an encoder for the given ordered levels. The
// first level encodes to 0, the second to 1, and so on.
//
// Example:
//
//	enc, err := preprocessing.NewOrdinalEncoder(
//	    "Never", "Rarely", "Sometimes", "Very frequently",
//	)
func NewOrdinalEncoder(levels ...string) (*OrdinalEncoder, error) {
	if len(levels) < 2 {
		return nil, smErrors.NewValidationError("levels", "need at least 2 ordered levels", len(levels))
	}

	levelToCode := make(map[string]float64, len(levels))
	for i, level := range levels {
		if _, dup := levelToCode[level]; dup {
			return nil, smErrors.NewValidationError("levels", "duplicate level", level)
		}
		levelToCode[level] = float64(i)
	}

	e := &OrdinalEncoder{
		Levels:      append([]string(nil), levels...),
		levelToCode: levelToCode,
	}
	e.SetFitted()
	return e, nil
}

// Encode maps a single level to its code. An unrecognized level returns a
// CategoryError naming the column and row so the caller can reject the row.
func (e *OrdinalEncoder) Encode(value, column string, row int) (float64, error) {
	code, ok := e.levelToCode[value]
	if !ok {
		return 0, smErrors.NewCategoryError(column, value, row)
	}
	return code, nil
}

// NumLevels returns the number of levels in the scale.
func (e *OrdinalEncoder) NumLevels() int {
	return len(e.Levels)
}

// String returns a printable representation of the encoder
func (e *OrdinalEncoder) String() string {
	return fmt.Sprintf("OrdinalEncoder(levels=%d)", len(e.Levels))
}

// IndicatorEncoder expands a single categorical column into k-1 indicator
// columns. The alphabetically first category is the reference level and
// maps to all zeros; dropping one column keeps the design matrix full rank
// when an intercept is present.
type IndicatorEncoder struct {
	model.BaseEstimator

	// Categories holds the sorted categories seen during fitting.
	// Categories[0] is the reference level.
	Categories []string

	categoryToIdx map[string]int
}

// NewIndicatorEncoder creates a new unfitted IndicatorEncoder.
//
// Example:
//
//	encoder := preprocessing.NewIndicatorEncoder()
//	err := encoder.Fit(values)
//	encoded, err := encoder.Transform(values)
func NewIndicatorEncoder() *IndicatorEncoder {
	return &IndicatorEncoder{}
}

// Fit learns the category set from the training values.
//
// Errors:
//   - ErrEmptyData: if values is empty
//   - ValidationError: if fewer than 2 distinct categories appear
func (e *IndicatorEncoder) Fit(values []string) (err error) {
	defer smErrors.Recover(&err, "IndicatorEncoder.Fit")
	if len(values) == 0 {
		return smErrors.NewModelError("IndicatorEncoder.Fit", "empty data", smErrors.ErrEmptyData)
	}

	categorySet := make(map[string]bool)
	for _, v := range values {
		categorySet[v] = true
	}

	if len(categorySet) < 2 {
		return smErrors.NewValidationError("values", "need at least 2 distinct categories", len(categorySet))
	}

	categories := make([]string, 0, len(categorySet))
	for category := range categorySet {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	e.Categories = categories
	e.categoryToIdx = make(map[string]int, len(categories))
	for idx, category := range categories {
		e.categoryToIdx[category] = idx
	}

	e.SetFitted()
	return nil
}

// Transform encodes values into an n x (k-1) indicator matrix. A category
// not seen during fitting returns a CategoryError; rows with unknown levels
// must be rejected upstream, never coerced to the reference level.
func (e *IndicatorEncoder) Transform(values []string) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "IndicatorEncoder.Transform")
	if !e.IsFitted() {
		return nil, smErrors.NewNotFittedError("IndicatorEncoder", "Transform")
	}

	if len(values) == 0 {
		return nil, smErrors.NewModelError("IndicatorEncoder.Transform", "empty data", smErrors.ErrEmptyData)
	}
	result := mat.NewDense(len(values), len(e.Categories)-1, nil)

	for i, v := range values {
		idx, ok := e.categoryToIdx[v]
		if !ok {
			return nil, smErrors.NewCategoryError("indicator", v, i)
		}
		// Reference level (idx 0) leaves the row at all zeros
		if idx > 0 {
			result.Set(i, idx-1, 1.0)
		}
	}

	return result, nil
}

// FitTransform learns the category set and encodes the same values.
func (e *IndicatorEncoder) FitTransform(values []string) (_ mat.Matrix, err error) {
	defer smErrors.Recover(&err, "IndicatorEncoder.FitTransform")
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// NumOutputs returns the number of indicator columns (k-1).
func (e *IndicatorEncoder) NumOutputs() int {
	if !e.IsFitted() {
		return 0
	}
	return len(e.Categories) - 1
}

// FeatureNames returns the output column names, one per non-reference
// category, in the form "<column>_<category>".
//
// Example: column "service" with categories [Apple, Spotify, YouTube]
// yields ["service_Spotify", "service_YouTube"].
func (e *IndicatorEncoder) FeatureNames(column string) []string {
	if !e.IsFitted() {
		return nil
	}

	names := make([]string, 0, len(e.Categories)-1)
	for _, category := range e.Categories[1:] {
		names = append(names, fmt.Sprintf("%s_%s", column, category))
	}
	return names
}
