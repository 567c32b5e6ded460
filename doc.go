// Package soundmind benchmarks regression families on the music and
// mental health survey.
//
// The survey maps listening habits (hours per day, genre frequencies,
// instrument and composition background, BPM) to self-reported anxiety,
// depression, insomnia and OCD scores. soundmind loads and cleans the
// CSV export, encodes the categorical columns, and compares model
// families on the composite mental-health score under nested
// cross-validation: hyperparameters are chosen on inner folds carved
// from each outer training partition, and every family is scored on the
// same outer folds so the numbers are directly comparable.
//
// # Models
//
// The benchmark roster is fixed:
//
//   - linear: ordinary least squares, best-subset selection
//     (exhaustive, forward or backward under R², adjusted R², Mallows'
//     Cp or BIC) and the lasso via cyclic coordinate descent
//   - neighbors: k-nearest-neighbor regression on standardized features
//   - tree: regression trees with cost-complexity pruning
//   - ensemble: random forests and gradient boosting
//
// # Quick Start
//
// Run the full benchmark from the command line:
//
//	soundmind --data mxmh_survey_results.csv --out report.json
//
// Or drive the pieces as a library:
//
//	table, err := dataset.LoadSurvey("mxmh_survey_results.csv", dataset.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	suite, err := bench.NewSuite(bench.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := suite.Run(table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := report.WriteTable(os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
//
// Individual estimators follow the usual Fit/Predict shape on gonum
// matrices:
//
//	model := linear.NewRegression()
//	if err := model.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//	preds, err := model.Predict(Xtest)
//
// # Packages
//
//   - dataset: survey CSV loading, cleaning and encoding
//   - preprocessing: standard scaling, ordinal and indicator encoders
//   - linear: OLS, subset selection, lasso
//   - neighbors: k-nearest-neighbor regression
//   - tree: regression trees and pruning
//   - ensemble: random forest and gradient boosting
//   - metrics: regression metrics and subset-selection criteria
//   - crossval: fold assignment, nested evaluation, grid tuning
//   - bench: the benchmark suite and report
//   - core/model, core/parallel: estimator state and parallel helpers
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Reproducibility
//
// Every source of randomness (fold shuffling, forest bootstraps and
// feature draws) descends from the run seed, so repeated runs with the
// same data and configuration produce identical reports.
package soundmind
