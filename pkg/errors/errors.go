// Package errors provides structured error handling and warnings for the
// soundmind benchmark. Errors carry stack traces via cockroachdb/errors and
// marshal themselves into zerolog events for structured logging.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// Default handler writes to the standard logger.
		log.Printf("soundmind-warning: %v\n", w)
	}
	// zerolog hook, set lazily to avoid a circular import with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the process-wide warning handler. Handing in a
// no-op silences warnings entirely.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs the zerolog-backed warning sink. pkg/log calls
// this during initialization so warnings become structured log events.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning through the zerolog sink when one is installed,
// falling back to the plain handler otherwise.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning reports an iterative solver that stopped at its
// iteration cap without meeting its tolerance.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or loosening the tolerance.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// DroppedRowsWarning reports how many survey rows were discarded during
// cleaning and why. It is emitted once per load, not per row.
type DroppedRowsWarning struct {
	Reason  string
	Dropped int
	Total   int
}

func (w *DroppedRowsWarning) Error() string {
	return fmt.Sprintf("dropped %d of %d rows: %s", w.Dropped, w.Total, w.Reason)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *DroppedRowsWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("reason", w.Reason).
		Int("dropped", w.Dropped).
		Int("total", w.Total).
		Str("type", "DroppedRowsWarning")
}

// NewDroppedRowsWarning creates a new DroppedRowsWarning.
func NewDroppedRowsWarning(reason string, dropped, total int) *DroppedRowsWarning {
	return &DroppedRowsWarning{Reason: reason, Dropped: dropped, Total: total}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when Predict or Transform is called on a model
// that has not been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("soundmind: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input data has a shape other than the one
// the operation expects.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("soundmind: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// DegenerateFitError is returned when an unregularized fit is requested with
// fewer observations than free parameters, where the normal equations are
// singular by construction and any coefficients would be meaningless.
type DegenerateFitError struct {
	Op      string
	Samples int
	Params  int
}

func (e *DegenerateFitError) Error() string {
	return fmt.Sprintf("soundmind: %s: degenerate fit: %d observations cannot identify %d free parameters", e.Op, e.Samples, e.Params)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DegenerateFitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("samples", e.Samples).
		Int("params", e.Params).
		Str("type", "DegenerateFitError")
}

// NewDegenerateFitError creates a DegenerateFitError with a stack trace attached.
func NewDegenerateFitError(op string, samples, params int) error {
	err := &DegenerateFitError{Op: op, Samples: samples, Params: params}
	return errors.WithStack(err)
}

// CategoryError reports a categorical or ordinal cell holding a level the
// schema does not recognize. The offending row is rejected rather than
// coerced; coercion would silently corrupt the ordinal semantics downstream.
type CategoryError struct {
	Column string
	Value  string
	Row    int
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("soundmind: row %d: unrecognized level %q in column %q", e.Row, e.Value, e.Column)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *CategoryError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("value", e.Value).
		Int("row", e.Row).
		Str("type", "CategoryError")
}

// NewCategoryError creates a CategoryError with a stack trace attached.
func NewCategoryError(column, value string, row int) error {
	err := &CategoryError{Column: column, Value: value, Row: row}
	return errors.WithStack(err)
}

// ValidationError is returned when a parameter fails validation. More
// specific than ValueError: it names the parameter and the rejected value.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("soundmind: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is unsuitable for the
// operation, e.g. an empty vector handed to a metric.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("soundmind: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError is a general model-related error wrapping an underlying cause.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("soundmind: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("soundmind: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace attached.
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrNotImplemented marks functionality that is declared but not built.
	ErrNotImplemented = New("not implemented")

	// ErrEmptyData is returned when an operation receives no data.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a design matrix is rank deficient.
	ErrSingularMatrix = New("singular matrix")

	// ErrNoValidFolds is returned when every inner fold of a hyperparameter
	// search is degenerate and no candidate can be scored.
	ErrNoValidFolds = New("no valid inner folds")
)
