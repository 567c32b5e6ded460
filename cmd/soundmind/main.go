// Command soundmind benchmarks regression families on the music and
// mental health survey under nested cross-validation.
//
// The run loads the survey CSV export, cleans and encodes it, and scores
// OLS, subset selection, lasso, k-nearest neighbors, pruned regression
// trees, random forests and gradient boosting on one shared outer fold
// assignment. The summary table goes to stdout; --out receives the full
// JSON report.
//
//	soundmind --data mxmh_survey_results.csv --out report.json
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/soundmind-ml/soundmind/bench"
	"github.com/soundmind-ml/soundmind/dataset"
	"github.com/soundmind-ml/soundmind/linear"
	"github.com/soundmind-ml/soundmind/metrics"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
)

// cliOptions carries the raw flag values. Enum-valued settings stay
// strings until buildConfig parses them.
type cliOptions struct {
	cfg       bench.Config
	target    string
	strategy  string
	criterion string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{cfg: bench.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "soundmind",
		Short: "Benchmark regression models on the music and mental health survey",
		Long: `soundmind loads the survey CSV export, cleans and encodes it, and
compares regression families under nested cross-validation: ordinary
least squares, best-subset selection, the lasso, k-nearest neighbors,
cost-complexity-pruned regression trees, random forests and gradient
boosting.

Every algorithm is evaluated on the same outer folds. Models with a
hyperparameter pick it on inner folds carved from each outer training
partition, then refit. The aligned summary table is written to stdout
and the full JSON report to --out.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cfg.DataPath, "data", "", "path to the survey CSV export (required)")
	flags.StringVar(&opts.target, "target", opts.cfg.Target.String(), "response variable: composite, anxiety, depression, insomnia, ocd")
	flags.BoolVar(&opts.cfg.IncludeStreamingService, "include-streaming-service", false, "expand the streaming service column into indicator features")
	flags.BoolVar(&opts.cfg.Strict, "strict", false, "fail on unrecognized categorical levels instead of dropping the row")
	flags.IntVar(&opts.cfg.OuterK, "outer-k", opts.cfg.OuterK, "outer cross-validation folds")
	flags.IntVar(&opts.cfg.InnerK, "inner-k", opts.cfg.InnerK, "inner folds for hyperparameter selection")
	flags.Int64Var(&opts.cfg.Seed, "seed", opts.cfg.Seed, "seed for fold assignment and tree ensembles")
	flags.StringVar(&opts.strategy, "subset-strategy", opts.cfg.SubsetStrategy.String(), "subset search: exhaustive, forward, backward")
	flags.StringVar(&opts.criterion, "subset-criterion", opts.cfg.SubsetCriterion.String(), "subset criterion: r2, adjr2, cp, bic")
	flags.IntVar(&opts.cfg.LassoGridSize, "lasso-grid-size", opts.cfg.LassoGridSize, "number of lambda candidates on the grid")
	flags.Float64Var(&opts.cfg.LassoEpsilon, "lasso-epsilon", opts.cfg.LassoEpsilon, "smallest lambda as a fraction of lambda_max")
	flags.StringVar(&opts.cfg.OutPath, "out", "", "write the full JSON report to this path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

// buildConfig parses the enum-valued flags into the final config.
func (o *cliOptions) buildConfig() (bench.Config, error) {
	cfg := o.cfg

	target, err := dataset.ParseTargetMode(o.target)
	if err != nil {
		return bench.Config{}, err
	}
	cfg.Target = target

	strategy, err := linear.ParseSubsetStrategy(o.strategy)
	if err != nil {
		return bench.Config{}, err
	}
	cfg.SubsetStrategy = strategy

	criterion, err := metrics.ParseCriterion(o.criterion)
	if err != nil {
		return bench.Config{}, err
	}
	cfg.SubsetCriterion = criterion

	return cfg, nil
}

func runBenchmark(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := opts.buildConfig()
	if err != nil {
		return err
	}

	suite, err := bench.NewSuite(cfg)
	if err != nil {
		return err
	}

	table, err := dataset.LoadSurvey(cfg.DataPath, cfg.DatasetOptions())
	if err != nil {
		return err
	}

	report, err := suite.Run(table)
	if err != nil {
		return err
	}

	if cfg.OutPath != "" {
		if err := writeReportFile(report, cfg.OutPath); err != nil {
			return err
		}
		log.GetLoggerWithName("cli").Info("Report written", log.PathKey, cfg.OutPath)
	}

	return report.WriteTable(cmd.OutOrStdout())
}

func writeReportFile(report *bench.Report, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return smErrors.Wrapf(err, "create report file %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = smErrors.Wrapf(cerr, "close report file %s", path)
		}
	}()
	return report.WriteJSON(f)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.GetLoggerWithName("cli").Error("Benchmark run failed", err)
		os.Exit(1)
	}
}
