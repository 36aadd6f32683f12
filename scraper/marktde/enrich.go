package marktde

import (
	"context"

	"github.com/chromedp/chromedp"

	"github.com/Teichhofer/Marktview/models"
)

// enrichListings completes every stub of one page through the worker pool
// and blocks until the page is done.
func (s *Scraper) enrichListings(ctx context.Context, listings []*models.Listing) {
	for _, listing := range listings {
		l := listing
		s.pool.Submit(func() {
			s.enrichOne(ctx, l)
		})
	}
	s.pool.Wait()
}

// enrichOne loads the detail page, parses it into the stub, and runs the
// inference passes. Every failure is logged and leaves the listing partially
// populated; it stays in the page batch either way.
func (s *Scraper) enrichOne(ctx context.Context, listing *models.Listing) {
	html, err := s.fetch(ctx, listing.URL)
	if err != nil {
		s.logger.Warn("[marktde] Detail page failed for %s: %v", listing.URL, err)
	} else if err := ParseDetail(html, listing); err != nil {
		s.logger.Warn("[marktde] Parsing %s failed: %v", listing.URL, err)
	}

	if listing.HasListingID() {
		s.known.Add(listing.ListingID)
	}

	if s.llm != nil {
		if listing.Gender == models.Unspecified {
			if gender, err := s.llm.InferGender(ctx, listing); err != nil {
				s.logger.Warn("[marktde] Gender inference for %q failed: %v", listing.Title, err)
			} else {
				listing.Gender = gender
			}
			if listing.Gender == models.Unspecified {
				listing.Gender = "unknown 0%"
			}
		}

		if audience, err := s.llm.InferAudience(ctx, listing); err != nil {
			s.logger.Warn("[marktde] Audience inference for %q failed: %v", listing.Title, err)
		} else {
			listing.TargetAudience = audience
		}
	}

	listing.Trim()
	s.logger.Debug("[marktde] Enriched: %s", listing.Title)
}

// fetchDetailTab opens the listing in its own tab so detail fetches never
// disturb the pagination tab.
func (s *Scraper) fetchDetailTab(ctx context.Context, url string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, detailTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.idleDelay+jitter()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
