package storage

import "github.com/Teichhofer/Marktview/models"

// ListingStore is the persistence interface the page walker writes through.
// Implementations must deduplicate by listing id so overlapping appends stay
// idempotent.
type ListingStore interface {
	// KnownIDs returns the identifiers of every previously stored listing.
	KnownIDs() (map[string]struct{}, error)
	// Append stores the listings not already present and reports how many
	// rows were actually written.
	Append(listings []*models.Listing) (int, error)
	Close() error
}
