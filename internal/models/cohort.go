package models

import (
	"time"

	"gopkg.in/guregu/null.v3"
)

// EncounterRow is one row of the Patients/Encounters join as returned by the database.
// Every column is nullable text; date columns are parsed later so that a bad
// value only affects its own row.
type EncounterRow struct {
	MRN              null.String `db:"mrn"`
	DOB              null.String `db:"dob"`
	PrimaryDiagnosis null.String `db:"primary_diagnosis"`
	EncounterDate    null.String `db:"encounter_date"`
	Study            null.String `db:"study"`
}

// CohortRow is one exported row after filtering and projection.
type CohortRow struct {
	MRN              string
	PrimaryDiagnosis string
	Study            string
	DateOfBirth      string // YYYY-MM-DD
	EncounterDate    string // YYYY-MM-DD
	Age              int
}

// RunStatus outcome of an extraction run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary describes one extraction run. It is logged and published to the
// configured notifiers.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	AsOf       string    `json:"as_of"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`

	Fetched           int `json:"fetched"`
	DroppedVocabulary int `json:"dropped_vocabulary"`
	DroppedIdentifier int `json:"dropped_identifier"`
	DroppedRecency    int `json:"dropped_recency"`
	DroppedAge        int `json:"dropped_age"`
	Kept              int `json:"kept"`
}
