package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/clients"
	"github.com/spec-kit/triage-engine/internal/domain"
)

func TestBuildReplyPrompt(t *testing.T) {
	passages := []domain.Passage{
		{SourceID: "refunds", Text: "Refunds are issued within 5 days."},
		{SourceID: "billing", Text: "Invoices are emailed monthly."},
	}
	prompt := BuildReplyPrompt("Refund", "Where is my refund?", passages)

	for _, want := range []string{
		"Subject: Refund\nBody: Where is my refund?",
		"Source 1 (verbatim excerpt):\nRefunds are issued within 5 days.",
		"\n\n---\n\nSource 2 (verbatim excerpt):\nInvoices are emailed monthly.",
		"Use ONLY the provided policy sources",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildReplyPromptCapsContext(t *testing.T) {
	cases := []struct {
		name string
		unit string
	}{
		{name: "ascii", unit: "a"},
		{name: "two-byte", unit: "é"},
		{name: "three-byte", unit: "政"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			long := strings.Repeat(tc.unit, MaxPromptContextChars)
			prompt := BuildReplyPrompt("s", "b", []domain.Passage{{Text: long}})

			idx := strings.Index(prompt, "Policy Sources:\n")
			if idx < 0 {
				t.Fatal("missing policy sources header")
			}
			block := prompt[idx+len("Policy Sources:\n"):]
			if n := utf8.RuneCountInString(block); n != MaxPromptContextChars {
				t.Fatalf("context block has %d characters, want %d", n, MaxPromptContextChars)
			}
			if !strings.HasPrefix(block, "Source 1") {
				t.Fatalf("unexpected block prefix %q", block[:20])
			}
			if !utf8.ValidString(block) || !strings.HasSuffix(block, tc.unit) {
				t.Fatal("truncation split a multi-byte character")
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{in: "héllo", n: 10, want: "héllo"},
		{in: "héllo", n: 5, want: "héllo"},
		{in: "héllo", n: 2, want: "hé"},
		{in: "héllo", n: 0, want: ""},
	}
	for _, tc := range cases {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestReplyDrafterDraft(t *testing.T) {
	cases := []struct {
		name string
		gen  clients.Generator
		want string
	}{
		{"no generator", nil, FallbackReply},
		{"not configured", &stubGenerator{configured: false, text: "ignored"}, FallbackReply},
		{"generator error", &stubGenerator{configured: true, err: errors.New("503")}, FallbackReply},
		{"not configured error", &stubGenerator{configured: true, err: clients.ErrNotConfigured}, FallbackReply},
		{"blank reply", &stubGenerator{configured: true, text: "  \n"}, FallbackReply},
		{"reply trimmed", &stubGenerator{configured: true, text: "  Hello, here is how to reset.  "}, "Hello, here is how to reset."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewReplyDrafter(tc.gen, 0, zap.NewNop())
			if got := d.Draft(context.Background(), "s", "b", nil); got != tc.want {
				t.Fatalf("Draft = %q, want %q", got, tc.want)
			}
		})
	}
}
