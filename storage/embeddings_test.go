package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteEmbeddings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "embeddings.jsonl")

	records := []EmbeddingRecord{
		{ListingID: "123", Title: "Erste", Embedding: []float64{0.1, 0.2}},
		{ListingID: "456", Title: "Zweite", Embedding: []float64{0.3}},
	}
	if err := WriteEmbeddings(path, records); err != nil {
		t.Fatalf("WriteEmbeddings returned %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	var got []EmbeddingRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec EmbeddingRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		got = append(got, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("file has %d lines, want 2", len(got))
	}
	if got[0].ListingID != "123" || got[0].Embedding[1] != 0.2 {
		t.Errorf("first record = %+v", got[0])
	}
}

func TestWriteEmbeddingsReplacesPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.jsonl")

	if err := WriteEmbeddings(path, []EmbeddingRecord{
		{ListingID: "1", Title: "Alt", Embedding: []float64{1}},
		{ListingID: "2", Title: "Alt", Embedding: []float64{2}},
	}); err != nil {
		t.Fatalf("WriteEmbeddings returned %v", err)
	}

	if err := WriteEmbeddings(path, []EmbeddingRecord{
		{ListingID: "3", Title: "Neu", Embedding: []float64{3}},
	}); err != nil {
		t.Fatalf("WriteEmbeddings returned %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec EmbeddingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("file should hold exactly one JSON line, got %q", data)
	}
	if rec.ListingID != "3" {
		t.Errorf("record id = %q, want 3", rec.ListingID)
	}
}
