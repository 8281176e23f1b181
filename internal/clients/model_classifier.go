package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// Generator produces text from a prompt.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelClassifier asks a generator for a strict-JSON classification.
type ModelClassifier struct {
	generator Generator
}

// NewModelClassifier wraps generator.
func NewModelClassifier(generator Generator) *ModelClassifier {
	return &ModelClassifier{generator: generator}
}

// Classify returns ErrNotConfigured without credentials and
// ErrMalformedResponse for anything but a valid label and priority.
func (m *ModelClassifier) Classify(ctx context.Context, subject, body string) (*domain.ClassificationResult, error) {
	if m.generator == nil || !m.generator.Configured() {
		return nil, ErrNotConfigured
	}
	text, err := m.generator.Generate(ctx, classificationPrompt(subject, body))
	if err != nil {
		return nil, err
	}
	return ParseClassification(text)
}

func classificationPrompt(subject, body string) string {
	labels := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		labels[i] = string(c)
	}
	return fmt.Sprintf("Classify the following ticket into one of the labels %s.\n"+
		"Return strict JSON: {\"category\":\"<label>\",\"priority\":\"High|Medium|Low\",\"confidence\":0.0-1.0}.\n"+
		"Subject: %s\nBody: %s", strings.Join(labels, ", "), subject, body)
}

type modelOpinion struct {
	Category   string   `json:"category"`
	Priority   string   `json:"priority"`
	Confidence *float64 `json:"confidence"`
}

// ParseClassification decodes a model reply, tolerating markdown code fences.
func ParseClassification(text string) (*domain.ClassificationResult, error) {
	cleaned := strings.NewReplacer("```json", "", "```", "").Replace(text)
	cleaned = strings.TrimSpace(cleaned)

	var op modelOpinion
	if err := json.Unmarshal([]byte(cleaned), &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	category := domain.Category(op.Category)
	priority := domain.Priority(op.Priority)
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, op.Category)
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrMalformedResponse, op.Priority)
	}

	confidence := 0.6
	if op.Confidence != nil && *op.Confidence != 0 {
		confidence = min(1, max(0, *op.Confidence))
	}
	flags := []string{}
	if category == domain.CategorySecurity {
		flags = append(flags, domain.RiskFlagSecurity)
	}
	return &domain.ClassificationResult{
		Category:   category,
		Priority:   priority,
		Confidence: confidence,
		RiskFlags:  flags,
	}, nil
}
