package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EmbeddingRecord is one JSON line in the embeddings output file.
type EmbeddingRecord struct {
	ListingID string    `json:"listing_id"`
	Title     string    `json:"title"`
	Embedding []float64 `json:"embedding"`
}

// WriteEmbeddings writes one JSON object per line to path, replacing any
// previous file.
func WriteEmbeddings(path string, records []EmbeddingRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("embeddings: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("embeddings: create %q: %w", path, err)
	}

	enc := json.NewEncoder(f)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("embeddings: encode record: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("embeddings: sync %q: %w", path, err)
	}
	return f.Close()
}
