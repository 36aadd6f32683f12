package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Teichhofer/Marktview/models"
)

// utf8BOM is written at the start of new files so spreadsheet tools pick up
// the encoding.
const utf8BOM = "\xEF\xBB\xBF"

// csvHeader is the fixed column set, one listing per row.
var csvHeader = []string{
	"title", "url", "postal_code", "created_at", "body",
	"gender", "target_audience", "financial_interest", "listing_id", "username",
}

// CSVStore appends listings to a CSV file, deduplicated by listing id. The
// file is created on the first append; every append reopens it, writes, and
// syncs, so partial runs leave a readable file behind. Safe for concurrent
// use.
type CSVStore struct {
	mu    sync.Mutex
	path  string
	known map[string]struct{}
}

// NewCSVStore prepares the store at path and loads the known ids from an
// existing file. Intermediate directories are created automatically.
func NewCSVStore(path string) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	s := &CSVStore{path: path, known: make(map[string]struct{})}
	if err := s.loadKnown(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadKnown scans an existing output file for the listing_id column. A
// missing file simply means an empty known set.
func (s *CSVStore) loadKnown() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("csv: open %q: %w", s.path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("csv: read header of %q: %w", s.path, err)
	}

	idCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "listing_id" {
			idCol = i
			break
		}
	}
	if idCol == -1 {
		return fmt.Errorf("csv: %q has no listing_id column", s.path)
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("csv: read %q: %w", s.path, err)
		}
		if idCol < len(record) {
			if id := strings.TrimSpace(record[idCol]); id != "" {
				s.known[id] = struct{}{}
			}
		}
	}
	return nil
}

// KnownIDs returns a copy of the identifiers stored so far.
func (s *CSVStore) KnownIDs() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.known))
	for id := range s.known {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Append writes the listings whose ids are not stored yet and reports how
// many rows went out. Listings without an id are always written.
func (s *CSVStore) Append(listings []*models.Listing) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	fresh := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.ListingID != "" {
			if _, dup := s.known[l.ListingID]; dup {
				continue
			}
			if _, dup := seen[l.ListingID]; dup {
				continue
			}
			seen[l.ListingID] = struct{}{}
		}
		fresh = append(fresh, l)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	f, created, err := s.openAppend()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if created {
		if err := w.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("csv: write header: %w", err)
		}
	}

	written := 0
	for _, l := range fresh {
		row := []string{
			l.Title, l.URL, l.PostalCode, l.CreatedAt, l.Body,
			l.Gender, l.TargetAudience, l.FinancialInterest, l.ListingID, l.Username,
		}
		if err := w.Write(row); err != nil {
			return written, fmt.Errorf("csv: write row: %w", err)
		}
		if l.ListingID != "" {
			s.known[l.ListingID] = struct{}{}
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return written, fmt.Errorf("csv: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return written, fmt.Errorf("csv: sync %q: %w", s.path, err)
	}
	return written, nil
}

// openAppend opens the output file for appending, creating it with the byte
// order mark when it does not exist yet.
func (s *CSVStore) openAppend() (*os.File, bool, error) {
	_, err := os.Stat(s.path)
	created := errors.Is(err, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("csv: open %q: %w", s.path, err)
	}
	if created {
		if _, err := f.WriteString(utf8BOM); err != nil {
			_ = f.Close()
			return nil, false, fmt.Errorf("csv: write byte order mark: %w", err)
		}
	}
	return f, created, nil
}

// Close is part of ListingStore. The store holds no handle between appends.
func (s *CSVStore) Close() error { return nil }
