package repository

import (
	"context"
	"fmt"

	"cohort-extractor/internal/cohort"
	"cohort-extractor/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// encountersQuery joins every patient to their encounters, restricted to the
// accepted diagnosis spellings and study phases. The two IN lists are expanded
// by sqlx.In.
const encountersQuery = `
	SELECT
		"Patients"."MRN"              AS mrn,
		"Patients"."DOB"              AS dob,
		"Patients"."PrimaryDiagnosis" AS primary_diagnosis,
		"Encounters"."Date"           AS encounter_date,
		"Encounters"."Study"          AS study
	FROM "Patients"
	INNER JOIN "Encounters" ON "Patients"."MRN" = "Encounters"."MRN"
	WHERE "Patients"."PrimaryDiagnosis" IN (?)
	  AND "Encounters"."Study" IN (?)
`

// CohortRepository reads candidate rows for the cohort.
type CohortRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCohortRepository creates a new cohort repository
func NewCohortRepository(db *sqlx.DB, logger *zap.Logger) *CohortRepository {
	return &CohortRepository{
		db:     db,
		logger: logger,
	}
}

// FetchEncounters runs the join and returns the rows in database order.
func (r *CohortRepository) FetchEncounters(ctx context.Context, vocab cohort.Vocabulary) ([]models.EncounterRow, error) {
	if err := vocab.Validate(); err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(encountersQuery, vocab.Diagnoses, vocab.StudyPhases)
	if err != nil {
		return nil, fmt.Errorf("failed to build encounters query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []models.EncounterRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query encounters: %w", err)
	}

	r.logger.Debug("Fetched encounter rows",
		zap.Int("rows", len(rows)),
		zap.Int("diagnosis_spellings", len(vocab.Diagnoses)),
		zap.Int("study_phases", len(vocab.StudyPhases)),
	)

	return rows, nil
}
