package cohort

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptyVocabulary is returned when a vocabulary would match nothing.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// Vocabulary holds the literal spellings accepted for the primary diagnosis and
// the study phase. Matching is exact and case-sensitive: a spelling that is not
// listed, including spacing variants, does not match.
type Vocabulary struct {
	Diagnoses   []string `yaml:"diagnoses"`
	StudyPhases []string `yaml:"study_phases"`
}

// DefaultVocabulary returns the cerebral palsy spellings found in the source
// data and the three study phases.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Diagnoses: []string{
			"Cerebral Palsy",
			"cerebral palsy",
			"Cerebral palsy",
			"cerebralpalsy",
			"CerebralPalsy",
			"CP",
			"cp",
		},
		StudyPhases: []string{"Pre-op", "Post-op", "Long-term"},
	}
}

// vocabularyFile distinguishes a missing key (nil) from an explicit empty list.
type vocabularyFile struct {
	Diagnoses   *[]string `yaml:"diagnoses"`
	StudyPhases *[]string `yaml:"study_phases"`
}

// LoadVocabulary reads a YAML vocabulary file. Keys missing from the file keep
// their default lists.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary is LoadVocabulary on an in-memory document.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var raw vocabularyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	v := DefaultVocabulary()
	if raw.Diagnoses != nil {
		v.Diagnoses = *raw.Diagnoses
	}
	if raw.StudyPhases != nil {
		v.StudyPhases = *raw.StudyPhases
	}
	if err := v.Validate(); err != nil {
		return Vocabulary{}, err
	}
	return v, nil
}

// Validate rejects vocabularies with an empty list.
func (v Vocabulary) Validate() error {
	if len(v.Diagnoses) == 0 {
		return fmt.Errorf("%w: no diagnoses", ErrEmptyVocabulary)
	}
	if len(v.StudyPhases) == 0 {
		return fmt.Errorf("%w: no study phases", ErrEmptyVocabulary)
	}
	return nil
}

func (v Vocabulary) AcceptsDiagnosis(s string) bool {
	return contains(v.Diagnoses, s)
}

func (v Vocabulary) AcceptsStudyPhase(s string) bool {
	return contains(v.StudyPhases, s)
}

// Marshal renders the vocabulary in the same shape LoadVocabulary reads.
func (v Vocabulary) Marshal() ([]byte, error) {
	return yaml.Marshal(v)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
