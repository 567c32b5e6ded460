package dataset

import (
	"fmt"
	"strconv"
	"strings"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
	"github.com/soundmind-ml/soundmind/preprocessing"
)

// frequencyLevels is the survey's listening-frequency response scale, in
// increasing order of exposure. Encoded positions are the ordinal values.
var frequencyLevels = []string{"Never", "Rarely", "Sometimes", "Very frequently"}

// errMissingValue marks a required cell that is empty or unparseable; rows
// carrying it are dropped without imputation.
var errMissingValue = smErrors.New("missing value")

// surveyRow is one respondent after decoding: the 24 base features in column
// order, the four raw sub-scores, and the streaming service level.
type surveyRow struct {
	features []float64
	scores   []float64
	service  string
}

// rowDecoder resolves the required columns against a CSV header once and
// then decodes records positionally.
type rowDecoder struct {
	numericIdx []int
	genreIdx   []int
	booleanIdx []int
	scoreIdx   []int
	serviceIdx int
	freq       *preprocessing.OrdinalEncoder
}

func newRowDecoder(header []string, includeService bool) (*rowDecoder, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := positions[name]; !ok {
			positions[name] = i
		}
	}

	resolve := func(names []string) ([]int, error) {
		idx := make([]int, len(names))
		for i, name := range names {
			pos, ok := positions[name]
			if !ok {
				return nil, smErrors.NewValueError("dataset.ReadSurvey", fmt.Sprintf("required column %q not found in header", name))
			}
			idx[i] = pos
		}
		return idx, nil
	}

	d := &rowDecoder{serviceIdx: -1}
	var err error
	if d.numericIdx, err = resolve(numericColumns); err != nil {
		return nil, err
	}
	if d.genreIdx, err = resolve(genreColumns); err != nil {
		return nil, err
	}
	if d.booleanIdx, err = resolve(booleanColumns); err != nil {
		return nil, err
	}
	if d.scoreIdx, err = resolve(scoreColumns); err != nil {
		return nil, err
	}
	if includeService {
		pos, ok := positions[ColStreaming]
		if !ok {
			return nil, smErrors.NewValueError("dataset.ReadSurvey", fmt.Sprintf("required column %q not found in header", ColStreaming))
		}
		d.serviceIdx = pos
	}

	d.freq, err = preprocessing.NewOrdinalEncoder(frequencyLevels...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// decode turns one CSV record into a surveyRow. Empty or unparseable cells
// return errMissingValue; unrecognized categorical levels return a
// CategoryError identifying the column and row.
func (d *rowDecoder) decode(record []string, row int) (surveyRow, error) {
	features := make([]float64, 0, len(d.numericIdx)+len(d.genreIdx)+len(d.booleanIdx))

	for i, pos := range d.numericIdx {
		cell := strings.TrimSpace(record[pos])
		if cell == "" {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q", row, numericColumns[i])
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q: %q is not numeric", row, numericColumns[i], cell)
		}
		features = append(features, v)
	}

	for i, pos := range d.genreIdx {
		cell := strings.TrimSpace(record[pos])
		if cell == "" {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q", row, genreColumns[i])
		}
		v, err := d.freq.Encode(cell, genreColumns[i], row)
		if err != nil {
			return surveyRow{}, err
		}
		features = append(features, v)
	}

	for i, pos := range d.booleanIdx {
		cell := strings.TrimSpace(record[pos])
		if cell == "" {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q", row, booleanColumns[i])
		}
		v, err := parseYesNo(cell, booleanColumns[i], row)
		if err != nil {
			return surveyRow{}, err
		}
		features = append(features, v)
	}

	scores := make([]float64, len(d.scoreIdx))
	for i, pos := range d.scoreIdx {
		cell := strings.TrimSpace(record[pos])
		if cell == "" {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q", row, scoreColumns[i])
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q: %q is not numeric", row, scoreColumns[i], cell)
		}
		if v < 0 || v > 10 {
			return surveyRow{}, smErrors.NewValueError("dataset.ReadSurvey", fmt.Sprintf("row %d: column %q: score %v outside [0, 10]", row, scoreColumns[i], v))
		}
		scores[i] = v
	}

	out := surveyRow{features: features, scores: scores}
	if d.serviceIdx >= 0 {
		cell := strings.TrimSpace(record[d.serviceIdx])
		if cell == "" {
			return surveyRow{}, smErrors.Wrapf(errMissingValue, "row %d: column %q", row, ColStreaming)
		}
		out.service = cell
	}
	return out, nil
}

// parseYesNo maps the lifestyle flags to {1, 0}. Anything but the two
// literal levels rejects the row.
func parseYesNo(value, column string, row int) (float64, error) {
	switch value {
	case "Yes":
		return 1, nil
	case "No":
		return 0, nil
	default:
		return 0, smErrors.NewCategoryError(column, value, row)
	}
}
