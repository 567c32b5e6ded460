// Package model provides core abstractions for benchmark estimators.
//
// Two state-tracking styles coexist here:
//
//   - BaseEstimator: embedded by stateless transformers such as scalers
//     and encoders
//   - StateManager: composed into regressors that need thread-safe state
//     and dimension tracking
//
// Both guard against use of unfitted models. New regressors should prefer
// composition with StateManager.
//
// Example usage:
//
//	type MyModel struct {
//		State *model.StateManager
//		// model-specific fields
//	}
//
//	func (m *MyModel) Fit(X, y mat.Matrix) error {
//		// training logic
//		m.State.SetFitted()
//		return nil
//	}
package model

// EstimatorState represents the learning state of a model
type EstimatorState int

const (
	// NotFitted indicates the model is not yet trained
	NotFitted EstimatorState = iota
	// Fitted indicates the model has been trained
	Fitted
)

// BaseEstimator is the base structure embedded by transformers
type BaseEstimator struct {
	// State holds the model's learning state. Public for gob encoding.
	State EstimatorState

	// logger is used for logging model operations. Ignored by gob encoding.
	logger interface{} // Using interface{} to avoid circular imports, will be set to log.Logger

	// hyperparameters holds the model's hyperparameters
	hyperparameters map[string]interface{}
}

// IsFitted returns whether the model has been fitted with training data.
//
// All estimators must be fitted before they can be used for predictions or
// transformations.
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted marks the estimator as fitted (trained).
//
// Called internally by estimator implementations after successful training.
// Should only be called by implementations, not by end users.
func (e *BaseEstimator) SetFitted() {
	e.State = Fitted
}

// Reset returns the estimator to its initial untrained state. After reset,
// the estimator must be fitted again before use.
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
}

// SetLogger sets the logger for this estimator.
//
// Parameters:
//   - logger: Any logger implementation (typically log.Logger interface)
func (e *BaseEstimator) SetLogger(logger interface{}) {
	e.logger = logger
}

// GetLogger returns the logger for this estimator.
// Returns nil if no logger has been set.
func (e *BaseEstimator) GetLogger() interface{} {
	return e.logger
}

// LogInfo logs an info-level message if a logger is configured.
// Convenience method to avoid repetitive nil checks in implementations.
func (e *BaseEstimator) LogInfo(msg string, fields ...interface{}) {
	if e.logger != nil {
		// Kept generic to avoid circular imports with pkg/log
		if logger, ok := e.logger.(interface {
			Info(string, ...interface{})
		}); ok {
			logger.Info(msg, fields...)
		}
	}
}

// LogDebug logs a debug-level message if a logger is configured.
func (e *BaseEstimator) LogDebug(msg string, fields ...interface{}) {
	if e.logger != nil {
		if logger, ok := e.logger.(interface {
			Debug(string, ...interface{})
		}); ok {
			logger.Debug(msg, fields...)
		}
	}
}

// LogError logs an error-level message if a logger is configured.
func (e *BaseEstimator) LogError(msg string, fields ...interface{}) {
	if e.logger != nil {
		if logger, ok := e.logger.(interface {
			Error(string, ...interface{})
		}); ok {
			logger.Error(msg, fields...)
		}
	}
}

// GetParams retrieves the estimator's hyperparameters
func (e *BaseEstimator) GetParams(deep bool) map[string]interface{} {
	if e.hyperparameters == nil {
		return make(map[string]interface{})
	}

	if !deep {
		return e.hyperparameters
	}

	// Create deep copy
	params := make(map[string]interface{})
	for k, v := range e.hyperparameters {
		params[k] = v
	}
	return params
}

// SetParams sets the estimator's hyperparameters
func (e *BaseEstimator) SetParams(params map[string]interface{}) error {
	if e.hyperparameters == nil {
		e.hyperparameters = make(map[string]interface{})
	}

	for k, v := range params {
		e.hyperparameters[k] = v
	}

	return nil
}

// Clone creates a new instance with the same state and hyperparameters
func (e *BaseEstimator) Clone() *BaseEstimator {
	clone := &BaseEstimator{
		State:           e.State,
		hyperparameters: make(map[string]interface{}),
	}

	for k, v := range e.hyperparameters {
		clone.hyperparameters[k] = v
	}

	return clone
}
