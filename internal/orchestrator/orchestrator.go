package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// ReviewSource fetches a product's reviews, highlights, and features.
type ReviewSource interface {
	ScrapeProduct(ctx context.Context, productID, productName string) *models.Product
}

// PriceSource fetches a product's price and inventory snapshot.
type PriceSource interface {
	FetchPrice(ctx context.Context, productID, storeID string) (*models.PriceInfo, error)
}

// FallbackSource extracts reviews from the rendered product page. Used when
// the review API returns nothing.
type FallbackSource interface {
	ScrapeProductReviews(ctx context.Context, productID string, maxReviews int) (*models.Product, error)
}

// ProductSource discovers products to scrape.
type ProductSource interface {
	Discover(ctx context.Context, totalLimit int) []models.ProductRef
}

// Store persists artifacts and run summaries.
type Store interface {
	SaveProduct(p *models.Product, source string) (string, error)
	SavePrice(info *models.PriceInfo) (string, error)
	SaveSummary(results []models.Result, operationType string) (string, error)
	ExistingProductIDs() map[string]struct{}
	FailedProducts(summaryFile string) ([]models.ProductRef, error)
}

// Orchestrator drives the scraping pipeline: per-product state machine,
// batched runs with a bounded worker pool, discovery sweeps, and resume of
// failed products.
type Orchestrator struct {
	reviews  ReviewSource
	prices   PriceSource
	fallback FallbackSource
	products ProductSource
	store    Store
	cfg      *config.Config
	logger   *slog.Logger
}

// New creates an Orchestrator. fallback may be nil to disable the browser
// path entirely.
func New(reviews ReviewSource, prices PriceSource, fallback FallbackSource, products ProductSource, store Store, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		reviews:  reviews,
		prices:   prices,
		fallback: fallback,
		products: products,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
	}
}

// ScrapeSingle runs the full pipeline for one product: reviews via the API,
// the browser fallback when the API yields nothing, and the price snapshot
// unless withPrice is false. A price failure never degrades a review
// success; a panic anywhere in the pipeline becomes an error result rather
// than taking down the batch.
func (o *Orchestrator) ScrapeSingle(ctx context.Context, productID, productName string, useFallback, withPrice bool) (result models.Result) {
	result = models.Result{ProductID: productID, Name: productName}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while scraping", "product_id", productID, "panic", r)
			result.Status = models.StatusError
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	o.logger.Info("scraping product", "product_id", productID, "name", productName)

	product := o.reviews.ScrapeProduct(ctx, productID, productName)
	source := models.SourceAPI

	if len(product.Reviews) == 0 && useFallback && o.fallback != nil {
		o.logger.Info("no reviews from api, trying browser fallback", "product_id", productID)
		fbProduct, err := o.fallback.ScrapeProductReviews(ctx, productID, 0)
		if err != nil {
			o.logger.Warn("browser fallback failed", "product_id", productID, "error", err)
		} else if fbProduct != nil && len(fbProduct.Reviews) > 0 {
			product.Reviews = fbProduct.Reviews
			if product.URL == "" {
				product.URL = fbProduct.URL
			}
			source = models.SourceBrowser
		}
	}

	hasReviews := len(product.Reviews) > 0
	hasProductData := hasReviews || len(product.Highlights) > 0 || len(product.Features) > 0

	// Price is independent of the review outcome and, when present, rides
	// along inside the review artifact.
	if withPrice {
		price, err := o.prices.FetchPrice(ctx, productID, "")
		switch {
		case err != nil:
			o.logger.Warn("price fetch failed", "product_id", productID, "error", err)
		case price == nil:
			o.logger.Debug("no price data", "product_id", productID)
		default:
			product.PriceInfo = price
			if path, err := o.store.SavePrice(price); err != nil {
				o.logger.Error("save price failed", "product_id", productID, "error", err)
			} else {
				result.PriceAvailable = true
				result.FilesSaved = append(result.FilesSaved, path)
			}
		}
	}

	// Only review-bearing products leave a review artifact; the artifact
	// filename marks the product as scraped, which would hide a review-less
	// product from resume and discovery runs forever.
	if hasReviews {
		result.ReviewsSource = source
		path, err := o.store.SaveProduct(product, source)
		if err != nil {
			o.logger.Error("save product failed", "product_id", productID, "error", err)
			result.Status = models.StatusError
			result.Error = err.Error()
			return result
		}
		result.FilesSaved = append(result.FilesSaved, path)
	}
	result.ReviewsCount = len(product.Reviews)

	switch {
	case hasReviews:
		result.Status = models.StatusSuccess
	case hasProductData || result.PriceAvailable:
		result.Status = models.StatusNoReviews
	default:
		result.Status = models.StatusNoData
	}

	o.logger.Info("product done", "product_id", productID,
		"status", result.Status, "reviews", result.ReviewsCount, "source", result.ReviewsSource)
	return result
}

// ScrapeBatch scrapes products in fixed-size batches. Within a batch,
// products run on a bounded worker pool (sequentially with the API delay
// when workers is 1); batches are separated by the batch delay. Results
// arrive in completion order. A summary is persisted before returning.
func (o *Orchestrator) ScrapeBatch(ctx context.Context, products []models.ProductRef, useFallback bool) []models.Result {
	return o.runBatches(ctx, products, o.cfg.Scrape.Workers, useFallback, "batch_scraping")
}

// DiscoverAndScrape sweeps the search terms for products, optionally skips
// ones already on disk, and scrapes the rest as a batch.
func (o *Orchestrator) DiscoverAndScrape(ctx context.Context, limit int, skipExisting, useFallback bool) []models.Result {
	found := o.products.Discover(ctx, limit)
	o.logger.Info("discovery returned products", "count", len(found))

	if skipExisting {
		existing := o.store.ExistingProductIDs()
		var fresh []models.ProductRef
		for _, p := range found {
			if _, done := existing[p.ProductID]; !done {
				fresh = append(fresh, p)
			}
		}
		o.logger.Info("filtered already-scraped products",
			"skipped", len(found)-len(fresh), "remaining", len(fresh))
		found = fresh
	}

	return o.runBatches(ctx, found, o.cfg.Scrape.Workers, useFallback, "discovery_scraping")
}

// ResumeFailed retries the products a previous run recorded as failed or
// review-less, skipping any that have since produced artifacts. Retries run
// with reduced concurrency.
func (o *Orchestrator) ResumeFailed(ctx context.Context, summaryFile string, useFallback bool) ([]models.Result, error) {
	failed, err := o.store.FailedProducts(summaryFile)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		o.logger.Info("nothing to resume")
		return nil, nil
	}

	workers := o.cfg.Scrape.Workers
	if workers > 2 {
		workers = 2
	}
	return o.runBatches(ctx, failed, workers, useFallback, "retry_scraping"), nil
}

func (o *Orchestrator) runBatches(ctx context.Context, products []models.ProductRef, workers int, useFallback bool, operationType string) []models.Result {
	if len(products) == 0 {
		return nil
	}

	batchSize := o.cfg.Scrape.BatchSize
	if batchSize <= 0 {
		batchSize = len(products)
	}

	results := make([]models.Result, 0, len(products))
	for start := 0; start < len(products); start += batchSize {
		end := start + batchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]

		o.logger.Info("starting batch",
			"batch", start/batchSize+1,
			"size", len(batch),
			"progress", fmt.Sprintf("%d/%d", end, len(products)))

		results = append(results, o.scrapeBatch(ctx, batch, workers, useFallback)...)

		if end < len(products) {
			o.logger.Info("waiting between batches", "delay", o.cfg.Scrape.BatchDelay)
			sleepCtx(ctx, o.cfg.Scrape.BatchDelay)
		}
		if ctx.Err() != nil {
			o.logger.Warn("run cancelled", "completed", len(results), "total", len(products))
			break
		}
	}

	if _, err := o.store.SaveSummary(results, operationType); err != nil {
		o.logger.Error("save summary failed", "error", err)
	}
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// scrapeBatch runs one batch on a bounded worker pool. workers==1 keeps the
// original sequential pacing with the API delay between products.
func (o *Orchestrator) scrapeBatch(ctx context.Context, batch []models.ProductRef, workers int, useFallback bool) []models.Result {
	if workers <= 1 {
		results := make([]models.Result, 0, len(batch))
		for i, p := range batch {
			results = append(results, o.ScrapeSingle(ctx, p.ProductID, p.Name, useFallback, true))
			if i < len(batch)-1 {
				sleepCtx(ctx, o.cfg.Scrape.APIDelay)
			}
		}
		return results
	}

	sem := make(chan struct{}, workers)
	out := make(chan models.Result, len(batch))
	var wg sync.WaitGroup

	for _, p := range batch {
		wg.Add(1)
		go func(p models.ProductRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out <- o.ScrapeSingle(ctx, p.ProductID, p.Name, useFallback, true)
		}(p)
	}
	wg.Wait()
	close(out)

	results := make([]models.Result, 0, len(batch))
	for r := range out {
		results = append(results, r)
	}
	return results
}
