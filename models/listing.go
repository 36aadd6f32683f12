package models

import "strings"

// Sentinel values for fields the site did not provide.
const (
	// Unspecified marks gender, financial interest, listing id and username
	// fields that are absent on the detail page.
	Unspecified = "unspecified"
	// UnknownAudience is the target audience before (or after a failed)
	// inference.
	UnknownAudience = "unknown"
)

// Listing is one scraped classified ad. It is constructed as a stub with
// only Title and URL at index-parse time and filled in place by the detail
// enricher. CreatedAt keeps the site-native text and is never parsed into a
// date type.
type Listing struct {
	Title             string
	URL               string
	PostalCode        string
	CreatedAt         string
	Body              string
	Gender            string
	TargetAudience    string
	FinancialInterest string
	ListingID         string
	Username          string
}

// New returns a stub listing with sentinel defaults and trimmed fields.
func New(title, url string) *Listing {
	l := &Listing{
		Title:             title,
		URL:               url,
		Gender:            Unspecified,
		TargetAudience:    UnknownAudience,
		FinancialInterest: Unspecified,
		ListingID:         Unspecified,
		Username:          Unspecified,
	}
	l.Trim()
	return l
}

// Trim strips surrounding whitespace from every textual field. No field is
// ever stored with leading or trailing whitespace.
func (l *Listing) Trim() {
	l.Title = strings.TrimSpace(l.Title)
	l.URL = strings.TrimSpace(l.URL)
	l.PostalCode = strings.TrimSpace(l.PostalCode)
	l.CreatedAt = strings.TrimSpace(l.CreatedAt)
	l.Body = strings.TrimSpace(l.Body)
	l.Gender = strings.TrimSpace(l.Gender)
	l.TargetAudience = strings.TrimSpace(l.TargetAudience)
	l.FinancialInterest = strings.TrimSpace(l.FinancialInterest)
	l.ListingID = strings.TrimSpace(l.ListingID)
	l.Username = strings.TrimSpace(l.Username)
}

// HasListingID reports whether the site supplied a usable identifier.
func (l *Listing) HasListingID() bool {
	return l.ListingID != "" && l.ListingID != Unspecified
}

// ScrapeReport holds the computed analytics over one run's listings.
type ScrapeReport struct {
	TotalListings int
	WithListingID int
	WithBody      int
	AvgBodyChars  float64
	ByGender      map[string]int
	ByAudience    map[string]int
	ByPostalCode  map[string]int
}
