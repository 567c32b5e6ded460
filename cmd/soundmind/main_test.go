package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundmind-ml/soundmind/bench"
	"github.com/soundmind-ml/soundmind/dataset"
	"github.com/soundmind-ml/soundmind/linear"
	"github.com/soundmind-ml/soundmind/metrics"
	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

const surveyHeader = "Timestamp,Age,Primary streaming service,Hours per day," +
	"While working,Instrumentalist,Composer,Fav genre,Exploratory,Foreign languages,BPM," +
	"Frequency [Classical],Frequency [Country],Frequency [EDM],Frequency [Folk]," +
	"Frequency [Gospel],Frequency [Hip hop],Frequency [Jazz],Frequency [K pop]," +
	"Frequency [Latin],Frequency [Lofi],Frequency [Metal],Frequency [Pop]," +
	"Frequency [R&B],Frequency [Rap],Frequency [Rock],Frequency [Video game music]," +
	"Anxiety,Depression,Insomnia,OCD,Music effects,Permissions"

// writeSyntheticSurvey emits a clean survey CSV with n valid rows. The
// scores lean on hours and BPM so every model has signal to find. All
// draws come from a fixed seed, so the file is identical across runs.
func writeSyntheticSurvey(t *testing.T, dir string, n int) string {
	t.Helper()

	rng := rand.New(rand.NewPCG(17, 29))
	levels := []string{"Never", "Rarely", "Sometimes", "Very frequently"}
	yesNo := []string{"No", "Yes"}
	services := []string{"Spotify", "Apple Music", "YouTube Music", "Pandora"}
	genres := []string{"Rock", "Jazz", "Pop", "Classical"}
	effects := []string{"Improve", "No effect", "Worsen"}

	var b strings.Builder
	b.WriteString(surveyHeader + "\n")
	for i := 0; i < n; i++ {
		hours := float64(rng.IntN(17)) / 2
		bpm := 70 + rng.IntN(110)
		anxiety := rng.IntN(4) + int(hours)/2
		depression := rng.IntN(4) + (bpm-70)/40

		row := []string{
			fmt.Sprintf("8/27/2022 19:%02d:00", i%60),
			fmt.Sprintf("%d", 15+rng.IntN(45)),
			services[i%len(services)],
			fmt.Sprintf("%g", hours),
			yesNo[rng.IntN(2)],
			yesNo[rng.IntN(2)],
			yesNo[rng.IntN(2)],
			genres[i%len(genres)],
			yesNo[rng.IntN(2)],
			yesNo[rng.IntN(2)],
			fmt.Sprintf("%d", bpm),
		}
		for j := 0; j < 16; j++ {
			row = append(row, levels[rng.IntN(4)])
		}
		row = append(row,
			fmt.Sprintf("%d", anxiety),
			fmt.Sprintf("%d", depression),
			fmt.Sprintf("%d", rng.IntN(7)),
			fmt.Sprintf("%d", rng.IntN(5)),
			effects[i%len(effects)],
			"I understand.",
		)
		b.WriteString(strings.Join(row, ",") + "\n")
	}

	path := filepath.Join(dir, "survey.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func executeCmd(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmdRequiresData(t *testing.T) {
	_, err := executeCmd()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data")
}

func TestRootCmdRejectsBadFlagValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown target", []string{"--data", "x.csv", "--target", "happiness"}},
		{"unknown strategy", []string{"--data", "x.csv", "--subset-strategy", "random"}},
		{"unknown criterion", []string{"--data", "x.csv", "--subset-criterion", "aic"}},
		{"unknown log level", []string{"--data", "x.csv", "--log-level", "verbose"}},
		{"outer folds below two", []string{"--data", "x.csv", "--outer-k", "1"}},
		{"zero lasso grid", []string{"--data", "x.csv", "--lasso-grid-size", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(tt.args...)
			require.Error(t, err)
			var vErr *smErrors.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestRootCmdRejectsPositionalArgs(t *testing.T) {
	_, err := executeCmd("--data", "x.csv", "extra")
	require.Error(t, err)
}

func TestRootCmdMissingDataFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")
	_, err := executeCmd("--data", missing, "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestBuildConfigParsesEnumFlags(t *testing.T) {
	opts := &cliOptions{
		cfg:       bench.DefaultConfig(),
		target:    "insomnia",
		strategy:  "exhaustive",
		criterion: "cp",
	}
	opts.cfg.DataPath = "survey.csv"

	cfg, err := opts.buildConfig()
	require.NoError(t, err)
	assert.Equal(t, dataset.TargetInsomnia, cfg.Target)
	assert.Equal(t, linear.StrategyExhaustive, cfg.SubsetStrategy)
	assert.Equal(t, metrics.CriterionCp, cfg.SubsetCriterion)
}

func TestBuildConfigRejectsUnknownTarget(t *testing.T) {
	opts := &cliOptions{cfg: bench.DefaultConfig(), target: "mood", strategy: "forward", criterion: "bic"}
	_, err := opts.buildConfig()
	require.Error(t, err)
	var vErr *smErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRootCmdEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full benchmark run in short mode")
	}

	dir := t.TempDir()
	dataPath := writeSyntheticSurvey(t, dir, 60)
	reportPath := filepath.Join(dir, "report.json")

	out, err := executeCmd(
		"--data", dataPath,
		"--outer-k", "3",
		"--inner-k", "2",
		"--seed", "5",
		"--lasso-grid-size", "30",
		"--out", reportPath,
		"--log-level", "error",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "ALGORITHM")
	for _, name := range []string{"ols", "subset", "lasso", "knn", "tree", "forest", "boost"} {
		assert.Contains(t, out, name)
	}

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report bench.Report
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, 60, report.Dataset.Samples)
	assert.Equal(t, 60, report.Dataset.RawRows)
	assert.Equal(t, 0, report.Dataset.Dropped)
	assert.Equal(t, 24, report.Dataset.Features)
	assert.Equal(t, int64(5), report.Run.Seed)
	assert.Equal(t, 3, report.Run.OuterK)
	require.Len(t, report.Algorithms, 7)
	assert.Equal(t, "ols", report.Algorithms[0].Name)
	for _, alg := range report.Algorithms {
		assert.Len(t, alg.Folds, 3, alg.Name)
		assert.False(t, math.IsNaN(alg.MeanTestMSE), "NaN test MSE for %s", alg.Name)
	}
}
