package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/clients"
	"github.com/spec-kit/triage-engine/internal/domain"
)

// FallbackReply is returned whenever the generator cannot produce a draft.
const FallbackReply = "Thanks for reaching out. We are reviewing your request against our policy and will follow up shortly with specific guidance."

// MaxPromptContextChars bounds the passage block of the drafting prompt, in characters.
const MaxPromptContextChars = 12000

// BuildReplyPrompt renders the drafting prompt. Passages beyond the context
// budget are cut off.
func BuildReplyPrompt(subject, body string, passages []domain.Passage) string {
	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		blocks = append(blocks, fmt.Sprintf("Source %d (verbatim excerpt):\n%s", i+1, p.Text))
	}
	contextBlock := truncateRunes(strings.Join(blocks, "\n\n---\n\n"), MaxPromptContextChars)

	var b strings.Builder
	b.WriteString("You are a senior support agent. Draft a professional, ready-to-send reply to the customer.\n\n")
	b.WriteString("Constraints:\n")
	b.WriteString("- Use ONLY the provided policy sources. If not covered, say you will check internally or ask for clarification.\n")
	b.WriteString("- Be concise (6-10 sentences).\n")
	b.WriteString("- Use compliant, empathetic tone.\n")
	b.WriteString("- If steps are needed, include a short numbered list.\n")
	b.WriteString("- Do not include raw citations; integrate policy guidance naturally.\n\n")
	b.WriteString("Customer Ticket:\n")
	fmt.Fprintf(&b, "Subject: %s\nBody: %s\n\n", subject, body)
	b.WriteString("Policy Sources:\n")
	b.WriteString(contextBlock)
	return b.String()
}

// truncateRunes keeps the first n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ReplyDrafter produces a suggested reply from ticket text and passages.
type ReplyDrafter struct {
	generator clients.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewReplyDrafter creates the drafter. generator may be nil.
func NewReplyDrafter(generator clients.Generator, timeout time.Duration, logger *zap.Logger) *ReplyDrafter {
	return &ReplyDrafter{generator: generator, timeout: timeout, logger: logger}
}

// Draft always returns a non-empty reply.
func (d *ReplyDrafter) Draft(ctx context.Context, subject, body string, passages []domain.Passage) string {
	if d.generator == nil || !d.generator.Configured() {
		d.logger.Debug("generator not configured; using fallback reply")
		return FallbackReply
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	text, err := d.generator.Generate(ctx, BuildReplyPrompt(subject, body, passages))
	switch {
	case errors.Is(err, clients.ErrNotConfigured):
		d.logger.Debug("generator not configured; using fallback reply")
		return FallbackReply
	case err != nil:
		d.logger.Warn("reply generation failed; using fallback reply", zap.Error(err))
		return FallbackReply
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply
	}
	return text
}
