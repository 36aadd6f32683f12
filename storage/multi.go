package storage

import "github.com/Teichhofer/Marktview/models"

// MultiStore fans appends out to several sinks so the walker only sees one
// store. The first sink is the primary; its append count is the one
// reported.
type MultiStore struct {
	stores []ListingStore
}

// NewMultiStore combines the given sinks. At least one is expected.
func NewMultiStore(stores ...ListingStore) *MultiStore {
	return &MultiStore{stores: stores}
}

// KnownIDs unions the known ids of every sink.
func (m *MultiStore) KnownIDs() (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for _, st := range m.stores {
		known, err := st.KnownIDs()
		if err != nil {
			return nil, err
		}
		for id := range known {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// Append writes to every sink even when one fails and returns the primary
// sink's count together with the first error.
func (m *MultiStore) Append(listings []*models.Listing) (int, error) {
	var written int
	var firstErr error
	for i, st := range m.stores {
		n, err := st.Append(listings)
		if i == 0 {
			written = n
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return written, firstErr
}

// Close closes every sink and returns the first error.
func (m *MultiStore) Close() error {
	var firstErr error
	for _, st := range m.stores {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
