package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/utils"
)

func newTestEmbedder(t *testing.T, url string) *Embedder {
	t.Helper()
	return NewEmbedder(url, DefaultEmbeddingsModel, 5*time.Second, utils.NewLogger())
}

func TestEmbedListingRoundTrip(t *testing.T) {
	var payload struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding request payload: %v", err)
		}
		fmt.Fprint(w, `{"embedding":[0.1,0.2,0.3]}`)
	}))
	defer srv.Close()

	listing := models.New("Suche Brieffreund", "https://example.com/a")
	listing.Body = "Schreib mir gerne."
	listing.PostalCode = "74670"

	vector, err := newTestEmbedder(t, srv.URL).EmbedListing(context.Background(), listing)
	if err != nil {
		t.Fatalf("EmbedListing returned %v, want nil", err)
	}
	if len(vector) != 3 || vector[1] != 0.2 {
		t.Errorf("vector = %v, want [0.1 0.2 0.3]", vector)
	}
	if payload.Model != DefaultEmbeddingsModel {
		t.Errorf("payload model = %q, want %q", payload.Model, DefaultEmbeddingsModel)
	}
	if !strings.Contains(payload.Prompt, "Suche Brieffreund") || !strings.Contains(payload.Prompt, "PLZ: 74670") {
		t.Errorf("prompt missing listing parts:\n%s", payload.Prompt)
	}
}

func TestEmbedTextMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embedding":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestEmbedder(t, srv.URL).EmbedText(context.Background(), "text"); !errors.Is(err, ErrNoEmbedding) {
		t.Fatalf("EmbedText returned %v, want ErrNoEmbedding", err)
	}
}

func TestEmbedTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestEmbedder(t, srv.URL).EmbedText(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("EmbedText returned %v, want status error", err)
	}
}

func TestEmbeddingPromptAssembly(t *testing.T) {
	listing := models.New("Titel", "https://example.com/a")
	listing.Body = "Der Text."
	listing.PostalCode = "10115"
	listing.CreatedAt = "01.08.2026"
	listing.Username = "nutzer42"

	got := EmbeddingPrompt(listing)
	want := "Titel\n\nDer Text.\n\nPLZ: 10115 | Erstellt: 01.08.2026 | Nutzer: nutzer42"
	if got != want {
		t.Errorf("EmbeddingPrompt = %q, want %q", got, want)
	}
}

func TestEmbeddingPromptSkipsSentinelUsername(t *testing.T) {
	listing := models.New("Titel", "https://example.com/a")
	listing.PostalCode = "10115"

	got := EmbeddingPrompt(listing)
	if strings.Contains(got, "Nutzer:") {
		t.Errorf("prompt must not name an unspecified user: %q", got)
	}
	if !strings.Contains(got, "PLZ: 10115") {
		t.Errorf("prompt missing postal code: %q", got)
	}
}

func TestEmbeddingPromptTruncates(t *testing.T) {
	listing := models.New("T", "https://example.com/a")
	listing.Body = strings.Repeat("ä", 3000)

	got := EmbeddingPrompt(listing)
	if runes := []rune(got); len(runes) != maxPromptChars {
		t.Errorf("prompt length = %d runes, want %d", len(runes), maxPromptChars)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated prompt must end in an ellipsis: %q", got[len(got)-12:])
	}
}

func TestEmbedListingWithoutText(t *testing.T) {
	listing := models.New("", "https://example.com/a")

	if _, err := newTestEmbedder(t, "http://127.0.0.1:1").EmbedListing(context.Background(), listing); err == nil {
		t.Fatal("EmbedListing should fail for a listing without text")
	}
}

func TestEmbedListingsStopsAtFirstFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"embedding":[1.0]}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	listings := []*models.Listing{
		models.New("Erste Anzeige", "https://example.com/1"),
		models.New("Zweite Anzeige", "https://example.com/2"),
		models.New("Dritte Anzeige", "https://example.com/3"),
	}

	embedded, err := newTestEmbedder(t, srv.URL).EmbedListings(context.Background(), listings)
	if !errors.Is(err, ErrNoEmbedding) {
		t.Fatalf("EmbedListings returned %v, want ErrNoEmbedding", err)
	}
	if len(embedded) != 1 {
		t.Fatalf("EmbedListings kept %d vectors, want 1", len(embedded))
	}
	if embedded[0].Listing.Title != "Erste Anzeige" {
		t.Errorf("first embedded listing = %q, want %q", embedded[0].Listing.Title, "Erste Anzeige")
	}
	if calls != 2 {
		t.Errorf("backend saw %d requests, want 2", calls)
	}
}
