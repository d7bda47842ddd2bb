package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cohort-extractor/internal/cohort"
	"cohort-extractor/internal/config"
	"cohort-extractor/internal/export"
	"cohort-extractor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Export.OutputPath = "env.xlsx"
	cfg.Database.Driver = "postgres"

	applyOverrides(cfg, &overrides{output: "flag.xlsx", asOf: "2024-06-01", dsn: "postgres://x"})

	assert.Equal(t, "flag.xlsx", cfg.Export.OutputPath)
	assert.Equal(t, "2024-06-01", cfg.Cohort.AsOf)
	assert.Equal(t, "postgres://x", cfg.Database.DSN)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestVocabularyCommand_Default(t *testing.T) {
	os.Clearenv()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"vocabulary"})

	require.NoError(t, cmd.Execute())

	v, err := cohort.ParseVocabulary(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cohort.DefaultVocabulary(), v)
}

func TestVocabularyCommand_FromFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("diagnoses: [\"CP\"]\n"), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"vocabulary", "--vocabulary", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "- CP")
	assert.NotContains(t, out.String(), "cerebralpalsy")
}

func TestRunCommand_InvalidAsOf(t *testing.T) {
	os.Clearenv()

	var stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--as-of", "June 1st"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 1, strings.Count(stderr.String(), "June 1st"), stderr.String())
}

func TestRunCommand_UnsupportedDriver(t *testing.T) {
	os.Clearenv()
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--driver", "odbc", "--output", filepath.Join(t.TempDir(), "out.xlsx")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestRunCommand_VerifyFlagDefaultsOff(t *testing.T) {
	flag := newRootCmd().PersistentFlags().Lookup("verify")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestVerifyOutput(t *testing.T) {
	cfg := &config.Config{}
	cfg.Export.SheetName = "Cohort"
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, export.WriteCohort(path, "Cohort", []models.CohortRow{
		{MRN: "1234567", PrimaryDiagnosis: "CP", Study: "Pre-op", DateOfBirth: "2010-01-01", EncounterDate: "2019-01-01", Age: 14},
	}))

	summary := &models.RunSummary{RunID: "run-test", OutputPath: path, Kept: 1}
	assert.NoError(t, verifyOutput(cfg, summary, zap.NewNop()))

	summary.Kept = 2
	assert.ErrorIs(t, verifyOutput(cfg, summary, zap.NewNop()), export.ErrRowCountMismatch)
}
