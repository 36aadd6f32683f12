package llm

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

	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/utils"
)

// Defaults for the embeddings endpoint, independent from text generation.
const (
	DefaultEmbeddingsModel    = "qwen3-embedding:0.6b"
	DefaultEmbeddingsEndpoint = "http://localhost:11434/api/embeddings"
	DefaultEmbeddingsTimeout  = 15 * time.Second
)

// maxPromptChars caps the embedding prompt to keep payloads small.
const maxPromptChars = 1500

// ErrNoEmbedding is returned when the backend answers without a vector.
var ErrNoEmbedding = errors.New("llm: response carries no embedding")

// Embedding pairs a listing with its vector.
type Embedding struct {
	Listing *models.Listing
	Vector  []float64
}

// Embedder creates listing embeddings through an Ollama-style endpoint.
type Embedder struct {
	httpClient *http.Client
	endpoint   string
	model      string
	logger     *utils.Logger
}

// NewEmbedder creates an Embedder for the given endpoint and model.
func NewEmbedder(endpoint, model string, timeout time.Duration, logger *utils.Logger) *Embedder {
	return &Embedder{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      model,
		logger:     logger,
	}
}

// EmbeddingPrompt assembles the text sent to the embedding model: title,
// body and a compact metadata line, blank-line separated and hard-capped at
// maxPromptChars characters.
func EmbeddingPrompt(listing *models.Listing) string {
	parts := []string{listing.Title}
	if listing.Body != "" {
		parts = append(parts, listing.Body)
	}

	var metadata []string
	if listing.PostalCode != "" {
		metadata = append(metadata, "PLZ: "+listing.PostalCode)
	}
	if listing.CreatedAt != "" {
		metadata = append(metadata, "Erstellt: "+listing.CreatedAt)
	}
	if listing.Username != "" && listing.Username != models.Unspecified {
		metadata = append(metadata, "Nutzer: "+listing.Username)
	}
	if len(metadata) > 0 {
		parts = append(parts, strings.Join(metadata, " | "))
	}

	var kept []string
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			kept = append(kept, p)
		}
	}
	prompt := strings.Join(kept, "\n\n")

	if runes := []rune(prompt); len(runes) > maxPromptChars {
		prompt = strings.TrimRight(string(runes[:maxPromptChars-1]), " \t\n") + "…"
	}
	return prompt
}

// EmbedText requests an embedding vector for a plain text snippet.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(map[string]string{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: embeddings endpoint returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decoding embeddings response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return parsed.Embedding, nil
}

// EmbedListing builds the prompt for one listing and requests its vector.
func (e *Embedder) EmbedListing(ctx context.Context, listing *models.Listing) ([]float64, error) {
	prompt := EmbeddingPrompt(listing)
	if prompt == "" {
		return nil, fmt.Errorf("llm: listing has no text to embed")
	}

	identifier := listing.Title
	if listing.HasListingID() {
		identifier = listing.ListingID
	}
	e.logger.Info("[embeddings] Embedding listing %s", identifier)

	return e.EmbedText(ctx, prompt)
}

// EmbedListings embeds listings one at a time, stopping at the first
// failure.
func (e *Embedder) EmbedListings(ctx context.Context, listings []*models.Listing) ([]Embedding, error) {
	embedded := make([]Embedding, 0, len(listings))
	for _, listing := range listings {
		vector, err := e.EmbedListing(ctx, listing)
		if err != nil {
			return embedded, fmt.Errorf("llm: embedding %q: %w", listing.Title, err)
		}
		embedded = append(embedded, Embedding{Listing: listing, Vector: vector})
	}
	return embedded, nil
}
