// Package dataset loads the music-listening and mental-health survey export
// and turns it into the numeric feature matrix the regression benchmark runs
// on. Loading is strict about the schema: rows with missing or unrecognized
// values are discarded whole, never imputed or coerced, and the resulting
// column order is fixed so coefficients and importance scores stay comparable
// across folds and algorithms.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/pkg/log"
	"github.com/soundmind-ml/soundmind/preprocessing"
)

// Column names as they appear in the survey CSV header.
const (
	ColAge       = "Age"
	ColHours     = "Hours per day"
	ColBPM       = "BPM"
	ColStreaming = "Primary streaming service"

	ColAnxiety    = "Anxiety"
	ColDepression = "Depression"
	ColInsomnia   = "Insomnia"
	ColOCD        = "OCD"
)

// numericColumns are the free numeric features, in output order.
var numericColumns = []string{ColAge, ColHours, ColBPM}

// genreColumns are the sixteen per-genre listening-frequency ordinals, in
// output order. Each holds one level of the frequency scale.
var genreColumns = []string{
	"Frequency [Classical]",
	"Frequency [Country]",
	"Frequency [EDM]",
	"Frequency [Folk]",
	"Frequency [Gospel]",
	"Frequency [Hip hop]",
	"Frequency [Jazz]",
	"Frequency [K pop]",
	"Frequency [Latin]",
	"Frequency [Lofi]",
	"Frequency [Metal]",
	"Frequency [Pop]",
	"Frequency [R&B]",
	"Frequency [Rap]",
	"Frequency [Rock]",
	"Frequency [Video game music]",
}

// booleanColumns are the Yes/No lifestyle flags, in output order.
var booleanColumns = []string{
	"While working",
	"Instrumentalist",
	"Composer",
	"Exploratory",
	"Foreign languages",
}

// scoreColumns are the four symptom sub-scores, each bounded to [0, 10].
var scoreColumns = []string{ColAnxiety, ColDepression, ColInsomnia, ColOCD}

// TargetMode selects the response variable derived from the four symptom
// sub-scores.
type TargetMode int

const (
	// TargetComposite sums the four sub-scores into one response in
	// [0, 40]. Summing conflates conditions with potentially different
	// predictive structure, which is why the single-score modes exist.
	TargetComposite TargetMode = iota
	// TargetAnxiety uses the anxiety sub-score alone.
	TargetAnxiety
	// TargetDepression uses the depression sub-score alone.
	TargetDepression
	// TargetInsomnia uses the insomnia sub-score alone.
	TargetInsomnia
	// TargetOCD uses the OCD sub-score alone.
	TargetOCD
)

// String returns the CLI-facing name of the target mode.
func (m TargetMode) String() string {
	switch m {
	case TargetComposite:
		return "composite"
	case TargetAnxiety:
		return "anxiety"
	case TargetDepression:
		return "depression"
	case TargetInsomnia:
		return "insomnia"
	case TargetOCD:
		return "ocd"
	default:
		return "unknown"
	}
}

// ParseTargetMode converts a CLI string into a TargetMode.
func ParseTargetMode(s string) (TargetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "composite", "sum", "total":
		return TargetComposite, nil
	case "anxiety":
		return TargetAnxiety, nil
	case "depression":
		return TargetDepression, nil
	case "insomnia":
		return TargetInsomnia, nil
	case "ocd":
		return TargetOCD, nil
	default:
		return 0, smErrors.NewValidationError("target", "must be one of composite, anxiety, depression, insomnia, ocd", s)
	}
}

// Options controls loading behavior.
type Options struct {
	// Target selects the response variable. Default is TargetComposite.
	Target TargetMode
	// IncludeStreamingService expands the primary streaming service into
	// indicator columns with the first level as reference. When false the
	// column is dropped entirely.
	IncludeStreamingService bool
	// Strict turns unrecognized categorical levels into a load failure
	// instead of a dropped row.
	Strict bool
}

// Table is the cleaned numeric dataset. Same input bytes always produce the
// same column order and the same matrix values.
type Table struct {
	// Columns holds the feature column names in matrix order.
	Columns []string
	// X is the n-by-len(Columns) feature matrix.
	X *mat.Dense
	// Y is the response vector for the loaded Target.
	Y *mat.VecDense
	// SubScores holds the four raw symptom sub-scores per kept row, in
	// scoreColumns order, so the response can be re-derived without a
	// reload.
	SubScores *mat.Dense
	// Target is the mode Y was built with.
	Target TargetMode
	// Raw is the number of data rows in the input file.
	Raw int
	// Dropped is the number of rows discarded during cleaning.
	Dropped int
}

// NumSamples returns the number of kept rows.
func (t *Table) NumSamples() int {
	if t.X == nil {
		return 0
	}
	r, _ := t.X.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (t *Table) NumFeatures() int {
	return len(t.Columns)
}

// Response derives the response vector for an arbitrary target mode from the
// stored sub-scores.
func (t *Table) Response(mode TargetMode) (*mat.VecDense, error) {
	if t.SubScores == nil {
		return nil, smErrors.NewValueError("dataset.Response", "table holds no sub-scores")
	}
	n, _ := t.SubScores.Dims()
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		switch mode {
		case TargetComposite:
			y.SetVec(i, t.SubScores.At(i, 0)+t.SubScores.At(i, 1)+t.SubScores.At(i, 2)+t.SubScores.At(i, 3))
		case TargetAnxiety:
			y.SetVec(i, t.SubScores.At(i, 0))
		case TargetDepression:
			y.SetVec(i, t.SubScores.At(i, 1))
		case TargetInsomnia:
			y.SetVec(i, t.SubScores.At(i, 2))
		case TargetOCD:
			y.SetVec(i, t.SubScores.At(i, 3))
		default:
			return nil, smErrors.NewValidationError("mode", "unknown target mode", int(mode))
		}
	}
	return y, nil
}

// ColumnSummary holds per-column descriptive statistics.
type ColumnSummary struct {
	Name string
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Describe returns summary statistics for every feature column plus the
// response. Used by the report metadata block and by sanity tests.
func (t *Table) Describe() []ColumnSummary {
	n := t.NumSamples()
	if n == 0 {
		return nil
	}
	summaries := make([]ColumnSummary, 0, len(t.Columns)+1)
	col := make([]float64, n)
	for j, name := range t.Columns {
		mat.Col(col, j, t.X)
		summaries = append(summaries, summarize(name, col))
	}
	copy(col, t.Y.RawVector().Data)
	summaries = append(summaries, summarize("response", col))
	return summaries
}

func summarize(name string, values []float64) ColumnSummary {
	return ColumnSummary{
		Name: name,
		Mean: stat.Mean(values, nil),
		Std:  stat.StdDev(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// LoadSurvey reads and cleans the survey CSV at path.
func LoadSurvey(path string, opts Options) (*Table, error) {
	cleanPath := filepath.Clean(path)
	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, smErrors.Wrapf(err, "failed to open survey file %s", cleanPath)
	}
	defer func() { _ = file.Close() }()

	table, err := ReadSurvey(file, opts)
	if err != nil {
		return nil, smErrors.Wrapf(err, "failed to load survey file %s", cleanPath)
	}
	return table, nil
}

// ReadSurvey reads and cleans a survey CSV from an io.Reader. The first
// record must be the header; rows with missing or unparseable required cells
// are dropped, and unrecognized categorical levels drop the row or, with
// Options.Strict, fail the read.
func ReadSurvey(r io.Reader, opts Options) (_ *Table, err error) {
	defer smErrors.Recover(&err, "ReadSurvey")

	logger := log.GetLoggerWithName("dataset")
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, smErrors.Wrap(err, "failed to read survey header")
	}
	dec, err := newRowDecoder(header, opts.IncludeStreamingService)
	if err != nil {
		return nil, err
	}

	var (
		rows     []surveyRow
		raw      int
		missing  int
		badLevel int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally short or long record is missing
			// required cells; drop it like any other incomplete row.
			if _, ok := err.(*csv.ParseError); ok {
				raw++
				missing++
				continue
			}
			return nil, smErrors.Wrap(err, "failed to read survey record")
		}
		raw++

		row, err := dec.decode(record, raw)
		if err != nil {
			var catErr *smErrors.CategoryError
			if smErrors.As(err, &catErr) {
				if opts.Strict {
					return nil, err
				}
				badLevel++
				logger.Debug("Dropping row with unrecognized level",
					"row", raw,
					"column", catErr.Column,
					"value", catErr.Value)
				continue
			}
			missing++
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, smErrors.NewModelError("ReadSurvey", "no usable rows after cleaning", smErrors.ErrEmptyData)
	}

	table, err := assemble(rows, opts)
	if err != nil {
		return nil, err
	}
	table.Raw = raw
	table.Dropped = raw - len(rows)

	if table.Dropped > 0 {
		smErrors.Warn(smErrors.NewDroppedRowsWarning("missing or unrecognized values", table.Dropped, raw))
	}
	logger.Info("Survey loaded",
		log.OperationKey, log.OperationLoad,
		log.RowsKeptKey, len(rows),
		log.RowsDroppedKey, table.Dropped,
		log.FeaturesKey, table.NumFeatures(),
		"target", table.Target.String(),
		"missing", missing,
		"bad_levels", badLevel)
	return table, nil
}

// assemble packs decoded rows into the feature matrix, expanding the
// streaming service when requested and deriving the response for the
// configured target.
func assemble(rows []surveyRow, opts Options) (*Table, error) {
	n := len(rows)
	base := len(numericColumns) + len(genreColumns) + len(booleanColumns)

	columns := make([]string, 0, base)
	columns = append(columns, numericColumns...)
	columns = append(columns, genreColumns...)
	columns = append(columns, booleanColumns...)

	var (
		indicators mat.Matrix
		indicNames []string
	)
	if opts.IncludeStreamingService {
		services := make([]string, n)
		for i, row := range rows {
			services[i] = row.service
		}
		enc := preprocessing.NewIndicatorEncoder()
		encoded, err := enc.FitTransform(services)
		if err != nil {
			return nil, err
		}
		indicators = encoded
		indicNames = enc.FeatureNames("service")
		columns = append(columns, indicNames...)
	}

	X := mat.NewDense(n, len(columns), nil)
	scores := mat.NewDense(n, len(scoreColumns), nil)
	for i, row := range rows {
		for j, v := range row.features {
			X.Set(i, j, v)
		}
		if indicators != nil {
			for j := range indicNames {
				X.Set(i, base+j, indicators.At(i, j))
			}
		}
		for j, v := range row.scores {
			scores.Set(i, j, v)
		}
	}

	table := &Table{
		Columns:   columns,
		X:         X,
		SubScores: scores,
		Target:    opts.Target,
	}
	y, err := table.Response(opts.Target)
	if err != nil {
		return nil, err
	}
	table.Y = y
	return table, nil
}
