package marktde

import (
	"context"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	consentBudget    = 5 * time.Second
	nextButtonBudget = 3 * time.Second
	detailTimeout    = 60 * time.Second
)

// jitter returns a uniform random delay between 0.1s and 3s so request
// timing does not look mechanical.
func jitter() time.Duration {
	return time.Duration(100+rand.Intn(2901)) * time.Millisecond
}

// waitReady gives the current page the configured settle time plus jitter.
func (s *Scraper) waitReady(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.Sleep(s.settleDelay+jitter()))
}

// acceptCookies dismisses the consent dialog when it shows up. The walk
// continues either way.
func (s *Scraper) acceptCookies(ctx context.Context) {
	clickCtx, cancel := context.WithTimeout(ctx, consentBudget)
	defer cancel()

	err := chromedp.Run(clickCtx,
		chromedp.WaitVisible(cookieButtonXPath, chromedp.BySearch),
		chromedp.Click(cookieButtonXPath, chromedp.BySearch),
	)
	if err != nil {
		s.logger.Debug("[marktde] No cookie banner: %v", err)
		return
	}
	s.logger.Info("[marktde] Accepted cookie banner")
}

// confirmAge clicks through the age gate when it shows up.
func (s *Scraper) confirmAge(ctx context.Context) {
	clickCtx, cancel := context.WithTimeout(ctx, consentBudget)
	defer cancel()

	err := chromedp.Run(clickCtx,
		chromedp.WaitVisible(ageGateSelector, chromedp.ByQuery),
		chromedp.Click(ageGateSelector, chromedp.ByQuery),
	)
	if err != nil {
		s.logger.Debug("[marktde] No age gate: %v", err)
		return
	}
	s.logger.Info("[marktde] Confirmed age gate")
}

// clickNext advances to the next result page. It reports false when the
// control never becomes visible, which ends the walk.
func (s *Scraper) clickNext(ctx context.Context) bool {
	clickCtx, cancel := context.WithTimeout(ctx, nextButtonBudget)
	defer cancel()

	err := chromedp.Run(clickCtx,
		chromedp.WaitVisible(selNextButton, chromedp.ByQuery),
		chromedp.Click(selNextButton, chromedp.ByQuery),
	)
	return err == nil
}
