package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/triage-engine/internal/config"
)

var (
	// ErrNotConfigured marks a client whose credentials are absent. Callers
	// treat it as an expected state and fall back.
	ErrNotConfigured = errors.New("credentials not configured")
	// ErrMalformedResponse marks a reply that could not be decoded.
	ErrMalformedResponse = errors.New("malformed model response")
)

const modelNotFoundHint = "not found for API version"

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewGeminiClient builds a client whose every call is bounded by timeout.
func NewGeminiClient(cfg config.LLMConfig, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		apiKey:  cfg.GoogleAPIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *GeminiClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini status %d: %s", e.status, e.message)
}

// Generate returns the first candidate text. The configured model is tried on
// v1 first, then on v1beta without the -latest suffix when v1 does not know it.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	attempts := []struct{ version, model string }{
		{"v1", c.model},
		{"v1beta", strings.TrimSuffix(c.model, "-latest")},
	}
	var lastErr error
	for _, attempt := range attempts {
		text, err := c.generate(ctx, attempt.version, attempt.model, prompt)
		if err == nil {
			return text, nil
		}
		var apiErr *apiError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.message, modelNotFoundHint) {
			lastErr = err
			continue
		}
		return "", fmt.Errorf("gemini %s/%s: %w", attempt.version, attempt.model, err)
	}
	return "", fmt.Errorf("gemini model %q not supported by this key: %w", c.model, lastErr)
}

func (c *GeminiClient) generate(ctx context.Context, version, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []generateContent{{Parts: []generatePart{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, version, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	// Header, not query: transport errors quote the request URL.
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return "", &apiError{status: resp.StatusCode, message: strings.TrimSpace(string(raw))}
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.StatusCode >= 300 || decoded.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", &apiError{status: resp.StatusCode, message: msg}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
