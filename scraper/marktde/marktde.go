package marktde

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Teichhofer/Marktview/config"
	"github.com/Teichhofer/Marktview/llm"
	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/storage"
	"github.com/Teichhofer/Marktview/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// inferencer is the llm.Client surface the enricher needs.
type inferencer interface {
	InferGender(ctx context.Context, listing *models.Listing) (string, error)
	InferAudience(ctx context.Context, listing *models.Listing) (string, error)
}

// fetchFunc loads one detail page and returns its HTML snapshot.
type fetchFunc func(ctx context.Context, url string) (string, error)

// Scraper walks the result pages of the classifieds search, completes every
// fresh tile from its detail page, and appends page batches to the store as
// it goes.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	llm    inferencer
	store  storage.ListingStore
	pool   *utils.WorkerPool
	known  *utils.IDSet
	retry  *utils.RetryConfig
	fetch  fetchFunc

	settleDelay time.Duration
	idleDelay   time.Duration

	mu       sync.Mutex
	listings []*models.Listing
}

// New creates a ready-to-use Scraper writing through store.
func New(cfg *config.Config, llmClient *llm.Client, store storage.ListingStore, logger *utils.Logger) *Scraper {
	s := &Scraper{
		cfg:    cfg,
		logger: logger,
		store:  store,
		pool:   utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		known:  utils.NewIDSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		settleDelay: time.Duration(cfg.PageReadyDelayMs) * time.Millisecond,
		idleDelay:   time.Duration(cfg.NetworkIdleDelayMs) * time.Millisecond,
		listings:    make([]*models.Listing, 0),
	}
	if llmClient != nil {
		s.llm = llmClient
	}
	s.fetch = s.fetchDetailTab
	return s
}

// Run drives the whole walk and returns every fresh listing handled this
// run. Per-page and per-listing failures are logged and skipped; only
// bootstrap problems return an error.
func (s *Scraper) Run(ctx context.Context) ([]*models.Listing, error) {
	known, err := s.store.KnownIDs()
	if err != nil {
		return nil, fmt.Errorf("marktde: loading known ids: %w", err)
	}
	s.known.Seed(known)
	s.logger.Info("[marktde] Starting at %s — %d listings already stored", s.cfg.StartURL, s.known.Size())

	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	if chromeBin != "" {
		s.logger.Info("[marktde] Using browser binary: %s", chromeBin)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// The pagination walk lives on one long-lived tab so the next-page
	// button keeps its state between pages.
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	if err := s.openStartPage(browserCtx); err != nil {
		return nil, fmt.Errorf("marktde: open start page: %w", err)
	}

	for page := 1; page <= s.cfg.MaxPages; page++ {
		select {
		case <-ctx.Done():
			s.logger.Warn("[marktde] Walk cancelled on page %d", page)
			return s.collected(), ctx.Err()
		default:
		}

		stubs, html, err := s.scrapePage(browserCtx, page)
		if err != nil {
			s.logger.Error("[marktde] Page %d failed: %v", page, err)
			break
		}

		if len(stubs) == 0 {
			s.logger.Warn("[marktde] Page %d has no listings — dumping snapshot", page)
			if path, derr := s.dumpPage(html, page); derr != nil {
				s.logger.Error("[marktde] Page dump failed: %v", derr)
			} else {
				s.logger.Info("[marktde] Page snapshot written to %s", path)
			}
			break
		}

		fresh := s.filterKnown(stubs)
		s.logger.Info("[marktde] Page %d: %d tiles, %d new", page, len(stubs), len(fresh))

		if len(fresh) > 0 {
			s.enrichListings(browserCtx, fresh)

			n, err := s.store.Append(fresh)
			if err != nil {
				s.logger.Error("[marktde] Persisting page %d failed: %v", page, err)
			} else {
				s.logger.Info("[marktde] Page %d done — stored %d new listings", page, n)
			}

			s.mu.Lock()
			s.listings = append(s.listings, fresh...)
			s.mu.Unlock()
		}

		if page == s.cfg.MaxPages {
			s.logger.Info("[marktde] Reached the page cap of %d", s.cfg.MaxPages)
			break
		}
		if !s.clickNext(browserCtx) {
			s.logger.Info("[marktde] No next-page control after page %d — walk complete", page)
			break
		}
	}

	s.logger.Info("[marktde] Walk finished — %d fresh listings", len(s.collected()))
	return s.collected(), nil
}

// openStartPage runs the initial navigation: load, settle, dismiss both
// consent dialogs, then aim at the start URL again because the consent
// reload can drop the query parameters.
func (s *Scraper) openStartPage(ctx context.Context) error {
	return s.retry.Do(ctx, "open-start-page", func() error {
		if err := chromedp.Run(ctx, chromedp.Navigate(s.cfg.StartURL)); err != nil {
			return err
		}
		if err := s.waitReady(ctx); err != nil {
			return err
		}

		s.acceptCookies(ctx)
		s.confirmAge(ctx)

		if err := chromedp.Run(ctx, chromedp.Navigate(s.cfg.StartURL)); err != nil {
			return err
		}
		return s.waitReady(ctx)
	})
}

// scrapePage snapshots the current result page and parses its tiles.
func (s *Scraper) scrapePage(ctx context.Context, page int) ([]*models.Listing, string, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, "", err
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, "", fmt.Errorf("snapshot of page %d: %w", page, err)
	}

	stubs, err := ParseIndex(html)
	if err != nil {
		return nil, html, err
	}
	return stubs, html, nil
}

// filterKnown drops stubs whose URL already embeds a known listing id. This
// is a cheap substring heuristic; the store's id check stays authoritative.
func (s *Scraper) filterKnown(stubs []*models.Listing) []*models.Listing {
	fresh := make([]*models.Listing, 0, len(stubs))
	for _, stub := range stubs {
		if s.known.ContainedIn(stub.URL) {
			s.logger.Debug("[marktde] Skipping known listing: %s", stub.URL)
			continue
		}
		fresh = append(fresh, stub)
	}
	return fresh
}

// dumpPage writes the raw snapshot next to the output file for inspection.
func (s *Scraper) dumpPage(html string, page int) (string, error) {
	dir := filepath.Dir(s.cfg.OutputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("dump_page_%d.html", page))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Scraper) collected() []*models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings
}

// findChromeBinary locates a Chrome/Chromium executable. An explicitly
// configured path wins.
func findChromeBinary(override string) string {
	if override != "" {
		return override
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
