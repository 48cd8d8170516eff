package ml

import (
	"context"
	"strings"

	"PersonaCollector/internal/ports"
)

// Tags assigned by the lexicon classifier.
const (
	TagPainPoint = "pain_point"
	TagPositive  = "positive"
)

var defaultLexicon = map[string][]string{
	TagPainPoint: {
		"problem", "issue", "broke", "broken", "stopped working", "doesn't work", "does not work",
		"disappointed", "waste", "difficult", "hard to", "struggle", "refund", "return it", "returned",
		"cheap", "uncomfortable", "too expensive", "never again",
	},
	TagPositive: {
		"love", "great", "amazing", "excellent", "recommend", "perfect", "comfortable",
		"works well", "best", "happy", "game changer", "worth it",
	},
}

var lexiconOrder = []string{TagPainPoint, TagPositive}

// LexiconClassifier tags text by substring lookup. It never fails.
type LexiconClassifier struct {
	terms map[string][]string
	order []string
}

var _ ports.TextClassifier = (*LexiconClassifier)(nil)

// NewLexiconClassifier returns the built-in pain-point/positive tagger.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{terms: defaultLexicon, order: lexiconOrder}
}

// Classify returns the tags whose terms occur in text, in a stable order.
func (l *LexiconClassifier) Classify(_ context.Context, text string) ([]string, error) {
	lower := strings.ToLower(text)

	var tags []string
	for _, tag := range l.order {
		for _, term := range l.terms[tag] {
			if strings.Contains(lower, term) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags, nil
}
