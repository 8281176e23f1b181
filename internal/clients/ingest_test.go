package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spec-kit/triage-engine/internal/config"
)

func TestIngestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "refund please" {
			t.Errorf("text = %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	client := NewIngestClient(config.RetrieverConfig{IngestURL: srv.URL + "/"}, time.Second)
	emb, err := client.Embed(context.Background(), "refund please")
	if err != nil || len(emb) != 3 {
		t.Fatalf("Embed = %v, %v", emb, err)
	}
}

func TestIngestEmbedErrors(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer down.Close()
	client := NewIngestClient(config.RetrieverConfig{IngestURL: down.URL}, time.Second)
	if _, err := client.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected status error")
	}

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer garbled.Close()
	client = NewIngestClient(config.RetrieverConfig{IngestURL: garbled.URL}, time.Second)
	if _, err := client.Embed(context.Background(), "x"); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}
