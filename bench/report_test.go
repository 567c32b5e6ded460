package bench

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundmind-ml/soundmind/crossval"
)

func sampleReport() *Report {
	return &Report{
		GeneratedAt: time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC),
		ElapsedMs:   1234,
		Dataset: DatasetInfo{
			Path:     "survey.csv",
			Samples:  622,
			Features: 24,
			RawRows:  736,
			Dropped:  114,
			Target:   "composite",
			Columns: []ColumnStat{
				{Name: "Age", Mean: 25.2, Std: 12.0, Min: 10, Max: 89},
			},
		},
		Run: RunInfo{
			OuterK:          10,
			InnerK:          10,
			Seed:            42,
			SubsetStrategy:  "forward",
			SubsetCriterion: "bic",
		},
		Algorithms: []AlgorithmResult{
			{
				Name:         "ols",
				MeanTrainMSE: 52.1234,
				MeanTestMSE:  60.5678,
				MinTestMSE:   48.9,
				Folds: []FoldDetail{
					{Fold: 0, TrainMSE: 52.0, TestMSE: 61.0},
				},
			},
			{
				Name:         "lasso",
				MeanTrainMSE: 53.0,
				MeanTestMSE:  59.0,
				MinTestMSE:   47.5,
				Folds: []FoldDetail{
					{
						Fold:     0,
						TrainMSE: 53.5,
						TestMSE:  58.0,
						Hyper:    &HyperChoice{Name: "lambda", Value: 0.25},
						Support:  []int{0, 2, 7},
					},
				},
			},
		},
	}
}

func TestReportWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteTable(&buf))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "ALGORITHM")
	assert.Contains(t, lines[0], "MEAN TRAIN MSE")
	assert.Contains(t, lines[0], "MIN TEST MSE")
	assert.Contains(t, lines[1], "ols")
	assert.Contains(t, lines[1], "52.1234")
	assert.Contains(t, lines[1], "60.5678")
	assert.Contains(t, lines[2], "lasso")

	// tabwriter pads every cell, so the second column starts at the same
	// offset on each line.
	headerIdx := strings.Index(lines[0], "MEAN TRAIN MSE")
	olsIdx := strings.Index(lines[1], "52.1234")
	assert.Equal(t, headerIdx, olsIdx)
}

func TestReportWriteJSONRoundTrip(t *testing.T) {
	report := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	// Indented output, not a single line.
	assert.True(t, strings.Contains(buf.String(), "\n  "))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.True(t, decoded.GeneratedAt.Equal(report.GeneratedAt))
	assert.Equal(t, report.ElapsedMs, decoded.ElapsedMs)
	assert.Equal(t, report.Dataset, decoded.Dataset)
	assert.Equal(t, report.Run, decoded.Run)
	require.Len(t, decoded.Algorithms, 2)
	assert.Equal(t, report.Algorithms[0], decoded.Algorithms[0])
	assert.Equal(t, report.Algorithms[1], decoded.Algorithms[1])

	// Untuned folds omit the hyper block entirely.
	assert.Nil(t, decoded.Algorithms[0].Folds[0].Hyper)
	raw := buf.String()
	assert.Contains(t, raw, `"lambda"`)
	assert.Contains(t, raw, `"support"`)
}

func TestNewReportFillsMetadata(t *testing.T) {
	table := syntheticTable(t, 30, 3, 0.5, 9)
	cfg := testConfig(5, 3, 17)

	summary := crossval.NewSummary("ols", []crossval.FoldResult{
		{Fold: 0, TrainMSE: 1.0, TestMSE: 2.0},
		{Fold: 1, TrainMSE: 1.5, TestMSE: 1.8},
	})
	report := NewReport(table, cfg, []AlgorithmResult{newAlgorithmResult(summary)})

	assert.False(t, report.GeneratedAt.IsZero())
	assert.Equal(t, "survey.csv", report.Dataset.Path)
	assert.Equal(t, 30, report.Dataset.Samples)
	assert.Equal(t, 3, report.Dataset.Features)
	assert.Equal(t, "composite", report.Dataset.Target)
	// Describe adds the response row after the feature columns.
	require.Len(t, report.Dataset.Columns, 4)
	assert.Equal(t, "x0", report.Dataset.Columns[0].Name)
	assert.Equal(t, "response", report.Dataset.Columns[3].Name)

	assert.Equal(t, 5, report.Run.OuterK)
	assert.Equal(t, 3, report.Run.InnerK)
	assert.Equal(t, int64(17), report.Run.Seed)
	assert.Equal(t, "forward", report.Run.SubsetStrategy)
	assert.Equal(t, "bic", report.Run.SubsetCriterion)

	require.Len(t, report.Algorithms, 1)
	algo := report.Algorithms[0]
	assert.Equal(t, "ols", algo.Name)
	assert.InDelta(t, 1.25, algo.MeanTrainMSE, 1e-12)
	assert.InDelta(t, 1.9, algo.MeanTestMSE, 1e-12)
	assert.InDelta(t, 1.8, algo.MinTestMSE, 1e-12)
	require.Len(t, algo.Folds, 2)
}
