package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/soundmind-ml/soundmind/crossval"
	"github.com/soundmind-ml/soundmind/dataset"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

// Report bundles one benchmark run: where the data came from, how the
// run was configured, and what every algorithm scored.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	ElapsedMs   int64             `json:"elapsed_ms"`
	Dataset     DatasetInfo       `json:"dataset"`
	Run         RunInfo           `json:"run"`
	Algorithms  []AlgorithmResult `json:"algorithms"`
}

// DatasetInfo describes the cleaned table the run used.
type DatasetInfo struct {
	Path     string       `json:"path,omitempty"`
	Samples  int          `json:"samples"`
	Features int          `json:"features"`
	RawRows  int          `json:"raw_rows"`
	Dropped  int          `json:"dropped_rows"`
	Target   string       `json:"target"`
	Columns  []ColumnStat `json:"columns"`
}

// ColumnStat carries the per-column summary statistics.
type ColumnStat struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// RunInfo records the evaluation settings.
type RunInfo struct {
	OuterK          int    `json:"outer_folds"`
	InnerK          int    `json:"inner_folds"`
	Seed            int64  `json:"seed"`
	SubsetStrategy  string `json:"subset_strategy"`
	SubsetCriterion string `json:"subset_criterion"`
}

// AlgorithmResult is one roster entry's aggregate plus per-fold detail.
type AlgorithmResult struct {
	Name         string       `json:"name"`
	MeanTrainMSE float64      `json:"mean_train_mse"`
	MeanTestMSE  float64      `json:"mean_test_mse"`
	MinTestMSE   float64      `json:"min_test_mse"`
	Folds        []FoldDetail `json:"folds"`
}

// FoldDetail is the serializable form of one outer-fold record.
type FoldDetail struct {
	Fold        int          `json:"fold"`
	TrainMSE    float64      `json:"train_mse"`
	TestMSE     float64      `json:"test_mse"`
	Hyper       *HyperChoice `json:"hyper,omitempty"`
	Support     []int        `json:"support,omitempty"`
	Importances []float64    `json:"importances,omitempty"`
}

// HyperChoice names the hyperparameter an inner search settled on.
type HyperChoice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// newAlgorithmResult flattens a harness summary into report form.
func newAlgorithmResult(s *crossval.Summary) AlgorithmResult {
	out := AlgorithmResult{
		Name:         s.Name,
		MeanTrainMSE: s.MeanTrainMSE,
		MeanTestMSE:  s.MeanTestMSE,
		MinTestMSE:   s.MinTestMSE,
		Folds:        make([]FoldDetail, 0, len(s.Folds)),
	}
	for _, fr := range s.Folds {
		detail := FoldDetail{
			Fold:        fr.Fold,
			TrainMSE:    fr.TrainMSE,
			TestMSE:     fr.TestMSE,
			Support:     fr.Support,
			Importances: fr.Importances,
		}
		if fr.Hyper != nil {
			detail.Hyper = &HyperChoice{Name: fr.Hyper.Name, Value: fr.Hyper.Value}
		}
		out.Folds = append(out.Folds, detail)
	}
	return out
}

// NewReport assembles the metadata blocks around the algorithm results.
func NewReport(table *dataset.Table, cfg Config, results []AlgorithmResult) *Report {
	info := DatasetInfo{
		Path:     cfg.DataPath,
		Samples:  table.NumSamples(),
		Features: table.NumFeatures(),
		RawRows:  table.Raw,
		Dropped:  table.Dropped,
		Target:   table.Target.String(),
	}
	for _, cs := range table.Describe() {
		info.Columns = append(info.Columns, ColumnStat{
			Name: cs.Name,
			Mean: cs.Mean,
			Std:  cs.Std,
			Min:  cs.Min,
			Max:  cs.Max,
		})
	}

	return &Report{
		GeneratedAt: time.Now().UTC(),
		Dataset:     info,
		Run: RunInfo{
			OuterK:          cfg.OuterK,
			InnerK:          cfg.InnerK,
			Seed:            cfg.Seed,
			SubsetStrategy:  cfg.SubsetStrategy.String(),
			SubsetCriterion: cfg.SubsetCriterion.String(),
		},
		Algorithms: results,
	}
}

// WriteJSON writes the full report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return smErrors.Wrap(err, "bench: encode report")
	}
	return nil
}

// WriteTable writes the aligned per-algorithm summary table.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ALGORITHM\tMEAN TRAIN MSE\tMEAN TEST MSE\tMIN TEST MSE"); err != nil {
		return smErrors.Wrap(err, "bench: write table")
	}
	for _, a := range r.Algorithms {
		if _, err := fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\n",
			a.Name, a.MeanTrainMSE, a.MeanTestMSE, a.MinTestMSE); err != nil {
			return smErrors.Wrap(err, "bench: write table")
		}
	}
	if err := tw.Flush(); err != nil {
		return smErrors.Wrap(err, "bench: write table")
	}
	return nil
}
