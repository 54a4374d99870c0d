package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// Clicking these triggers the lazy-loaded review list on some pages.
var ratingWidgetSelectors = []string{".bv-rnr__rpifwc-2"}

// BrowserScraper extracts reviews from rendered product pages. It is the
// fallback path for products whose reviews never appear in the API, and is
// inherently less reliable than the API path: review identity degrades to
// positional ids and field extraction is heuristic.
type BrowserScraper struct {
	searcher *ProductSearcher
	cfg      *config.Config
	logger   *slog.Logger
}

// NewBrowserScraper creates a BrowserScraper. The searcher resolves product
// page URLs via the search endpoint.
func NewBrowserScraper(searcher *ProductSearcher, cfg *config.Config, logger *slog.Logger) *BrowserScraper {
	return &BrowserScraper{
		searcher: searcher,
		cfg:      cfg,
		logger:   logger.With("component", "browser_scraper"),
	}
}

// ScrapeProductReviews loads the product page in a headless browser and
// extracts whatever reviews the heuristics can find. The returned product
// may have zero reviews; that is a valid "no reviews" outcome, not an error.
// The browser is released on every exit path.
func (b *BrowserScraper) ScrapeProductReviews(ctx context.Context, productID string, maxReviews int) (*models.Product, error) {
	if maxReviews <= 0 {
		maxReviews = b.cfg.Browser.MaxReviews
	}

	product := models.NewProduct(productID, "")

	pageURL, err := b.searcher.ResolveProductURL(ctx, productID)
	if err != nil {
		return product, fmt.Errorf("resolve product URL for %s: %w", productID, err)
	}
	product.URL = pageURL

	pageHTML, err := b.renderPage(ctx, pageURL)
	if err != nil {
		return product, err
	}

	reviews, err := ExtractReviewsFromHTML(pageHTML, maxReviews)
	if err != nil {
		return product, err
	}
	product.Reviews = reviews

	b.logger.Info("browser scrape complete", "product_id", productID, "reviews", len(reviews))
	return product, nil
}

// renderPage navigates a fresh browser session to the URL, nudges the lazy
// review widget, and returns the rendered HTML.
func (b *BrowserScraper) renderPage(ctx context.Context, pageURL string) (string, error) {
	l := launcher.New().
		Headless(b.cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", b.cfg.Browser.WindowSize)

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}

	timeout := b.cfg.Browser.PageTimeout

	b.logger.Info("loading page", "url", pageURL)
	if err := page.Timeout(timeout).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	// Wait for the document body, then let dynamic content settle.
	if _, err := page.Timeout(timeout).Element("body"); err != nil {
		return "", fmt.Errorf("page did not load: %w", err)
	}
	sleepCtx(ctx, b.cfg.Browser.SettleDelay)

	b.scrollToReviews(page)
	b.triggerReviewWidget(page)
	sleepCtx(ctx, b.cfg.Scrape.BrowserDelay)

	pageHTML, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return pageHTML, nil
}

// scrollToReviews brings the first matching reviews container into view so
// the widget's lazy loader fires. Absence of a container here is not an
// error; extraction makes the final call.
func (b *BrowserScraper) scrollToReviews(page *rod.Page) {
	for _, sel := range containerSelectors {
		el, err := page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.ScrollIntoView(); err == nil {
			b.logger.Debug("reviews container in view", "selector", sel)
			time.Sleep(2 * time.Second)
			return
		}
	}
	b.logger.Debug("no reviews container to scroll to")
}

// triggerReviewWidget performs best-effort scripted clicks on the rating UI
// elements known to lazy-load the review list. Missing elements are fine.
func (b *BrowserScraper) triggerReviewWidget(page *rod.Page) {
	for _, sel := range ratingWidgetSelectors {
		elements, err := page.Timeout(2 * time.Second).Elements(sel)
		if err != nil || len(elements) == 0 {
			continue
		}
		if len(elements) > 2 {
			elements = elements[:2]
		}
		for _, el := range elements {
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
			if _, err := el.Eval(`() => this.click()`); err == nil {
				b.logger.Debug("clicked rating widget", "selector", sel)
				time.Sleep(5 * time.Second)
				return
			}
		}
	}
}
