package marktde

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Teichhofer/Marktview/models"
)

var postalCodeRegexp = regexp.MustCompile(`\b\d{5}\b`)

// ParseIndex extracts listing stubs from a result page snapshot. Tiles
// without a title or target URL and injected ad tiles are dropped;
// root-relative URLs are made absolute.
func ParseIndex(html string) ([]*models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("marktde: parse index: %w", err)
	}

	var stubs []*models.Listing
	doc.Find(selResultItem).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.AttrOr(attrTileTitle, ""))
		url := strings.TrimSpace(sel.AttrOr(attrTileURL, ""))
		if title == "" || url == "" {
			return
		}
		if strings.Contains(url, adHostMarker) {
			return
		}
		if strings.HasPrefix(url, "/") {
			url = siteRoot + url
		}
		stubs = append(stubs, models.New(title, url))
	})
	return stubs, nil
}

// ParseDetail fills a stub in place from its detail page snapshot. Blocks
// missing from the page leave the sentinel values untouched.
func ParseDetail(html string, listing *models.Listing) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("marktde: parse detail: %w", err)
	}

	if loc := textOf(doc, selDetailLocation); loc != "" {
		if postal := postalCodeRegexp.FindString(loc); postal != "" {
			listing.PostalCode = postal
		}
	}
	if date := textOf(doc, selDetailDate); date != "" {
		listing.CreatedAt = date
	}
	if body := textOf(doc, selDetailBody); body != "" {
		listing.Body = body
	}
	if name := textOf(doc, selProfileName); name != "" {
		listing.Username = name
	}

	// The attribute table renders label/value span pairs in document order.
	labels := doc.Find(selAttrLabel)
	values := doc.Find(selAttrValue)
	n := labels.Length()
	if values.Length() < n {
		n = values.Length()
	}
	for i := 0; i < n; i++ {
		value := strings.TrimSpace(values.Eq(i).Text())
		if value == "" {
			continue
		}
		label := normalizeLabel(labels.Eq(i).Text())
		switch {
		case strings.Contains(label, "geschlecht"):
			listing.Gender = value
		case strings.Contains(label, "interesse an geld"):
			listing.FinancialInterest = value
		case strings.Contains(label, "anzeigenkennung"):
			listing.ListingID = value
		}
	}

	listing.Trim()
	return nil
}

// normalizeLabel prepares an attribute label for matching: soft hyphens the
// site uses for line breaking are removed, whitespace trimmed, case folded.
func normalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "­", "")
	return strings.ToLower(strings.TrimSpace(s))
}

func textOf(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}
