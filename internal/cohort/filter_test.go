package cohort

import (
	"testing"

	"cohort-extractor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
)

func row(mrn, dob, diagnosis, encounter, study string) models.EncounterRow {
	return models.EncounterRow{
		MRN:              null.StringFrom(mrn),
		DOB:              null.StringFrom(dob),
		PrimaryDiagnosis: null.StringFrom(diagnosis),
		EncounterDate:    null.StringFrom(encounter),
		Study:            null.StringFrom(study),
	}
}

func newFilter() Filter {
	return Filter{
		Vocabulary: DefaultVocabulary(),
		Criteria:   DefaultCriteria(),
		Today:      date(2024, 6, 1),
	}
}

func TestFilter_SingleQualifyingRow(t *testing.T) {
	out, stats := newFilter().Apply([]models.EncounterRow{
		row("1234567", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
	})

	require.Len(t, out, 1)
	assert.Equal(t, models.CohortRow{
		MRN:              "1234567",
		PrimaryDiagnosis: "CP",
		Study:            "Pre-op",
		DateOfBirth:      "2010-01-01",
		EncounterDate:    "2019-01-01",
		Age:              14,
	}, out[0])
	assert.Equal(t, Stats{Fetched: 1, Kept: 1}, stats)
}

func TestFilter_Cutoff(t *testing.T) {
	assert.Equal(t, date(2020, 6, 1), newFilter().Cutoff())
}

func TestFilter_IdentifierLength(t *testing.T) {
	rows := []models.EncounterRow{
		row("123456", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
		row("12345678", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
		row("", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
		{DOB: null.StringFrom("2010-01-01"), PrimaryDiagnosis: null.StringFrom("CP"),
			EncounterDate: null.StringFrom("2019-01-01"), Study: null.StringFrom("Pre-op")},
		row("AB12345", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 1)
	assert.Equal(t, "AB12345", out[0].MRN)
	assert.Equal(t, 4, stats.DroppedIdentifier)
}

func TestFilter_Recency(t *testing.T) {
	rows := []models.EncounterRow{
		row("0000001", "2010-01-01", "CP", "2020-06-01", "Pre-op"),         // on the cutoff
		row("0000002", "2010-01-01", "CP", "2020-06-02", "Post-op"),        // one day after
		row("0000003", "2010-01-01", "CP", "2023-01-01", "Long-term"),      // recent
		row("0000004", "2010-01-01", "CP", "2020-06-01T10:00:00Z", "Pre-op"), // later on the cutoff day
		row("0000005", "2010-01-01", "CP", "unknown", "Pre-op"),
		row("0000006", "2010-01-01", "CP", "2020-05-31 23:59:59", "Post-op"), // day before
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 2)
	assert.Equal(t, "0000001", out[0].MRN)
	assert.Equal(t, "0000006", out[1].MRN)
	assert.Equal(t, "2020-05-31", out[1].EncounterDate)
	assert.Equal(t, 4, stats.DroppedRecency)
}

func TestFilter_RecencyComparesClockOnCutoffDay(t *testing.T) {
	rows := []models.EncounterRow{
		row("0000001", "2010-01-01", "CP", "2020-06-01 00:00:00", "Pre-op"),
		row("0000002", "2010-01-01", "CP", "2020-06-01 00:00:01", "Pre-op"),
		row("0000003", "2010-01-01", "CP", "2020-06-01T10:00:00+10:00", "Pre-op"),
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 1)
	assert.Equal(t, "0000001", out[0].MRN)
	assert.Equal(t, 2, stats.DroppedRecency)
}

func TestFilter_AgeRange(t *testing.T) {
	rows := []models.EncounterRow{
		row("0000001", "2012-06-02", "CP", "2019-01-01", "Pre-op"), // 11, birthday tomorrow
		row("0000002", "2012-06-01", "CP", "2019-01-01", "Pre-op"), // 12 today
		row("0000003", "2005-06-02", "CP", "2019-01-01", "Pre-op"), // 18
		row("0000004", "2005-06-01", "CP", "2019-01-01", "Pre-op"), // 19 today
		row("0000005", "garbage", "CP", "2019-01-01", "Pre-op"),    // null age
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 2)
	assert.Equal(t, "0000002", out[0].MRN)
	assert.Equal(t, 12, out[0].Age)
	assert.Equal(t, "0000003", out[1].MRN)
	assert.Equal(t, 18, out[1].Age)
	assert.Equal(t, 3, stats.DroppedAge)
}

func TestFilter_Vocabulary(t *testing.T) {
	rows := []models.EncounterRow{
		row("0000001", "2010-01-01", "Cerebral  Palsy", "2019-01-01", "Pre-op"),
		row("0000002", "2010-01-01", "CP", "2019-01-01", "pre-op"),
		{MRN: null.StringFrom("0000003"), DOB: null.StringFrom("2010-01-01"),
			EncounterDate: null.StringFrom("2019-01-01"), Study: null.StringFrom("Pre-op")},
		row("0000004", "2010-01-01", "cerebralpalsy", "2019-01-01", "Long-term"),
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 1)
	assert.Equal(t, "0000004", out[0].MRN)
	assert.Equal(t, 3, stats.DroppedVocabulary)
}

func TestFilter_PreservesOrderAndCounts(t *testing.T) {
	rows := []models.EncounterRow{
		row("0000009", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
		row("bad", "2010-01-01", "CP", "2019-01-01", "Pre-op"),
		row("0000001", "2011-03-04", "cp", "2018-05-05", "Post-op"),
		row("0000005", "2000-01-01", "CP", "2019-01-01", "Pre-op"),
		row("0000003", "2010-01-01", "CP", "2024-01-01", "Pre-op"),
	}

	out, stats := newFilter().Apply(rows)

	require.Len(t, out, 2)
	assert.Equal(t, "0000009", out[0].MRN)
	assert.Equal(t, "0000001", out[1].MRN)
	assert.Equal(t, Stats{
		Fetched:           5,
		DroppedIdentifier: 1,
		DroppedRecency:    1,
		DroppedAge:        1,
		Kept:              2,
	}, stats)
	assert.Equal(t, "bad", rows[1].MRN.String)
}

func TestFilter_Empty(t *testing.T) {
	out, stats := newFilter().Apply(nil)

	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.Equal(t, Stats{}, stats)
}
