// Package spam scores message text for scam likelihood and applies the
// greeting adjustment before the score is compared to the alert threshold.
package spam

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textclassification"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LabelSpam is the label the detection model emits for scam-looking text.
const LabelSpam = "Spam"

// greetingDeboost is subtracted from a spam score when the text is a plain
// greeting, which the model tends to overrate.
const greetingDeboost = 0.4

// Verdict is a single classification outcome.
type Verdict struct {
	Label       string
	Probability float64
}

// Classifier scores free text. Handlers depend on this interface so tests
// can substitute a fixed-verdict implementation.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

type modelClassifier struct {
	model textclassification.Interface
}

// NewModelClassifier loads the detection model from modelsDir, downloading
// and converting it on first use.
func NewModelClassifier(modelsDir, modelName string) (Classifier, error) {
	model, err := tasks.Load[textclassification.Interface](&tasks.Config{
		ModelsDir:           modelsDir,
		ModelName:           modelName,
		DownloadPolicy:      tasks.DownloadMissing,
		ConversionPolicy:    tasks.ConvertMissing,
		ConversionPrecision: tasks.F32,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cant load detection model")
	}
	return &modelClassifier{model: model}, nil
}

func (c *modelClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	result, err := c.model.Classify(ctx, text)
	if err != nil {
		return Verdict{}, errors.Wrap(err, "cant classify text")
	}
	if len(result.Labels) == 0 {
		return Verdict{}, errors.New("detection model returned no labels")
	}

	best := 0
	for i := range result.Labels {
		if result.Scores[i] > result.Scores[best] {
			best = i
		}
	}
	verdict := Verdict{Label: result.Labels[best], Probability: result.Scores[best]}
	log.WithField("object", "Classifier").Debugf("%q -> %s %.3f", text, verdict.Label, verdict.Probability)
	return verdict, nil
}

var greetings = []string{
	"hello",
	"hi",
	"hey",
	"good morning",
	"good afternoon",
	"good evening",
	"gm",
	"gn",
}

// AdjustForGreeting lowers a spam verdict when the text contains a common
// greeting as a standalone word. Friendly openers are the model's main
// false positive.
func AdjustForGreeting(verdict Verdict, text string) Verdict {
	if verdict.Label != LabelSpam {
		return verdict
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, g := range greetings {
		if containsWord(normalized, g) {
			verdict.Probability -= greetingDeboost
			if verdict.Probability < 0 {
				verdict.Probability = 0
			}
			return verdict
		}
	}
	return verdict
}

// containsWord reports whether word occurs in text delimited by word
// boundaries, so "hi" matches "say hi" but not "highest".
func containsWord(text, word string) bool {
	for start := 0; start <= len(text)-len(word); {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i == len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
