// Package inference holds the scoring function. The classifier here is a
// deterministic keyword model; anything satisfying Scorer can replace it.
package inference

import (
	"context"
	"strings"

	"github.com/Jacobjfiske/inferflow/pkg/models"
)

// Scorer maps input text to a label and confidence score.
type Scorer interface {
	Score(ctx context.Context, text string) (models.Prediction, error)
}

var spamKeywords = []string{
	"free",
	"win",
	"offer",
	"click",
	"urgent",
	"limited time",
	"prize",
}

// KeywordClassifier labels text as spam when it contains two or more spam
// keywords, with a confidence that grows with the number of hits.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Score(_ context.Context, text string) (models.Prediction, error) {
	lowered := strings.ToLower(text)

	hits := 0
	for _, kw := range spamKeywords {
		if strings.Contains(lowered, kw) {
			hits++
		}
	}

	if hits >= 2 {
		return models.Prediction{Label: "spam", Score: min(0.99, 0.55+float64(hits)*0.1)}, nil
	}
	return models.Prediction{Label: "ham", Score: max(0.51, 0.9-float64(hits)*0.05)}, nil
}

var _ Scorer = (*KeywordClassifier)(nil)
