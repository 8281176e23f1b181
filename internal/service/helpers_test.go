package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/repository"
)

type stubOpinion struct {
	result *domain.ClassificationResult
	err    error
}

func (s stubOpinion) Classify(context.Context, string, string) (*domain.ClassificationResult, error) {
	if s.result == nil {
		return nil, s.err
	}
	out := *s.result
	return &out, s.err
}

type stubGenerator struct {
	configured bool
	text       string
	err        error

	mu      sync.Mutex
	prompts []string
}

func (s *stubGenerator) Configured() bool { return s.configured }

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.text, s.err
}

type stubEmbedder struct {
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := make([]float32, repository.EmbeddingDimensions)
	for i := range v {
		v[i] = 0.01
	}
	return v, nil
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func ptr[T any](v T) *T { return &v }
