package cohort

import (
	"time"
	"unicode/utf8"

	"cohort-extractor/internal/models"
)

// Criteria are the inclusion thresholds applied after the query.
type Criteria struct {
	IdentifierLength int // exact MRN length in characters
	MinAge           int // inclusive
	MaxAge           int // inclusive
	RecencyYears     int // encounters must be at least this many years old
}

func DefaultCriteria() Criteria {
	return Criteria{
		IdentifierLength: 7,
		MinAge:           12,
		MaxAge:           18,
		RecencyYears:     4,
	}
}

// Stats counts rows through the filter stages. A row is counted against the
// first stage that rejects it.
type Stats struct {
	Fetched           int
	DroppedVocabulary int
	DroppedIdentifier int
	DroppedRecency    int
	DroppedAge        int
	Kept              int
}

// Filter turns raw joined rows into cohort rows.
type Filter struct {
	Vocabulary Vocabulary
	Criteria   Criteria
	Today      time.Time // processing date; only the calendar date is used
}

// Cutoff is midnight of the latest encounter date that passes the recency
// stage. An encounter later that same day is past the cutoff.
func (f Filter) Cutoff() time.Time {
	return YearsBefore(DateOnly(f.Today), f.Criteria.RecencyYears)
}

// Apply runs every stage over rows and returns the surviving rows in input
// order. rows is not modified.
func (f Filter) Apply(rows []models.EncounterRow) ([]models.CohortRow, Stats) {
	today := DateOnly(f.Today)
	cutoff := f.Cutoff()
	stats := Stats{Fetched: len(rows)}
	out := make([]models.CohortRow, 0, len(rows))

	for _, r := range rows {
		// the query already restricts both columns; re-checking here keeps the
		// match exact when the database collation is case-insensitive
		if !r.PrimaryDiagnosis.Valid || !f.Vocabulary.AcceptsDiagnosis(r.PrimaryDiagnosis.String) ||
			!r.Study.Valid || !f.Vocabulary.AcceptsStudyPhase(r.Study.String) {
			stats.DroppedVocabulary++
			continue
		}

		if !r.MRN.Valid || utf8.RuneCountInString(r.MRN.String) != f.Criteria.IdentifierLength {
			stats.DroppedIdentifier++
			continue
		}

		encounter := ParseDateTime(r.EncounterDate)
		if !encounter.Valid || encounter.Time.After(cutoff) {
			stats.DroppedRecency++
			continue
		}

		dob := ParseDate(r.DOB)
		age := AgeOf(dob, today)
		if !age.Valid || age.Int64 < int64(f.Criteria.MinAge) || age.Int64 > int64(f.Criteria.MaxAge) {
			stats.DroppedAge++
			continue
		}

		out = append(out, models.CohortRow{
			MRN:              r.MRN.String,
			PrimaryDiagnosis: r.PrimaryDiagnosis.String,
			Study:            r.Study.String,
			DateOfBirth:      dob.Time.Format(DateLayout),
			EncounterDate:    encounter.Time.Format(DateLayout),
			Age:              int(age.Int64),
		})
	}

	stats.Kept = len(out)
	return out, stats
}
