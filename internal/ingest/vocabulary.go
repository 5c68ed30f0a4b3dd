package ingest

import (
	"strings"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// Vocabulary maps free-text race labels onto the closed label set
type Vocabulary struct {
	labels   map[string]model.Race
	synonyms map[string]model.Race
}

// NewVocabulary builds a vocabulary. Synonym targets outside labels are ignored.
func NewVocabulary(labels []model.Race, synonyms map[string]model.Race) *Vocabulary {
	v := &Vocabulary{
		labels:   make(map[string]model.Race, len(labels)),
		synonyms: make(map[string]model.Race, len(synonyms)),
	}
	for _, l := range labels {
		v.labels[fold(string(l))] = model.Race(fold(string(l)))
	}
	for from, to := range synonyms {
		if target, ok := v.labels[fold(string(to))]; ok {
			v.synonyms[fold(from)] = target
		}
	}
	return v
}

// VocabularyFromConfig builds the configured vocabulary
func VocabularyFromConfig(cfg model.VocabularyConfig) *Vocabulary {
	return NewVocabulary(cfg.Labels, cfg.Synonyms)
}

// Normalize maps a raw label into the vocabulary
func (v *Vocabulary) Normalize(raw string) (model.Race, bool) {
	key := fold(raw)
	if key == "" {
		return "", false
	}
	if r, ok := v.labels[key]; ok {
		return r, true
	}
	if r, ok := v.synonyms[key]; ok {
		return r, true
	}
	return "", false
}

// fold lowercases and collapses internal whitespace
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
