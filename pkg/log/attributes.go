// Standard attribute keys for benchmark operations.
//
// Using these keys consistently across packages keeps the JSON log stream
// filterable: every fit, tune, and evaluation carries the same vocabulary.
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples").

package log

// Model and Operation Context
// These attributes identify the model type, instance, and operation being performed.
const (
	// ModelNameKey identifies the type of model.
	// Examples: "LinearRegression", "KNNRegressor", "RandomForest"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific model instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "tune", "evaluate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "linear", "crossval", "dataset"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the benchmark lifecycle.
	// Examples: "training", "validation", "selection", "preprocessing"
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) being processed.
	FeaturesKey = "data.features"

	// RowsDroppedKey counts survey rows discarded during cleaning.
	RowsDroppedKey = "data.rows_dropped"

	// RowsKeptKey counts survey rows that survived cleaning.
	RowsKeptKey = "data.rows_kept"

	// PathKey names the file a loader read from.
	PathKey = "data.path"
)

// Cross-Validation Context
// These attributes locate a log record inside the nested resampling scheme.
const (
	// FoldKey is the zero-based index of the outer fold being processed.
	FoldKey = "cv.fold"

	// OuterFoldsKey is the outer fold count K1 for the run.
	OuterFoldsKey = "cv.outer_folds"

	// InnerFoldsKey is the inner fold count K2 for the run.
	InnerFoldsKey = "cv.inner_folds"

	// SeedKey records the random seed for reproducibility.
	SeedKey = "cv.seed"

	// CandidatesKey counts hyperparameter candidates scored in a search.
	CandidatesKey = "cv.candidates"

	// ChoiceKey names the hyperparameter value a search selected.
	ChoiceKey = "cv.choice"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// TrainMSEKey records mean squared error on training data.
	TrainMSEKey = "metrics.train_mse"

	// TestMSEKey records mean squared error on held-out data.
	TestMSEKey = "metrics.test_mse"

	// R2ScoreKey records the coefficient of determination for regression.
	R2ScoreKey = "metrics.r2_score"

	// IterationKey records the current iteration during iterative processes.
	IterationKey = "training.iteration"
)

// Prediction and Output Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	// Examples: "DIMENSION_MISMATCH", "NOT_FITTED", "DEGENERATE_FIT"
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Populated automatically by Error when a field value is an error.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute value constants for common operations.
const (
	// Standard operations
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationTune         = "tune"
	OperationEvaluate     = "evaluate"
	OperationBenchmark    = "benchmark"
	OperationLoad         = "load"
	OperationEncode       = "encode"

	// Standard phases
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
	PhaseSelection     = "selection"

	// Standard error codes
	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorSingularMatrix    = "SINGULAR_MATRIX"
	ErrorDegenerateFit     = "DEGENERATE_FIT"
)
