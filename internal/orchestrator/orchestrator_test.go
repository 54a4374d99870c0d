package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// --- Fakes ---

type fakeReviews struct {
	reviewsByID    map[string][]models.Review
	highlightsByID map[string]json.RawMessage
	panicOn        string
}

func (f *fakeReviews) ScrapeProduct(ctx context.Context, productID, productName string) *models.Product {
	if productID == f.panicOn {
		panic("scraper exploded")
	}
	p := models.NewProduct(productID, productName)
	p.Reviews = f.reviewsByID[productID]
	p.Highlights = f.highlightsByID[productID]
	return p
}

type fakePrices struct {
	err   error
	price *models.PriceInfo
}

func (f *fakePrices) FetchPrice(ctx context.Context, productID, storeID string) (*models.PriceInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.price, nil
}

type fakeFallback struct {
	reviews []models.Review
	err     error
	calls   int
}

func (f *fakeFallback) ScrapeProductReviews(ctx context.Context, productID string, maxReviews int) (*models.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := models.NewProduct(productID, "")
	p.URL = "https://example.com/p/" + productID
	p.Reviews = f.reviews
	return p, nil
}

type fakeProducts struct {
	refs []models.ProductRef
}

func (f *fakeProducts) Discover(ctx context.Context, totalLimit int) []models.ProductRef {
	if totalLimit < len(f.refs) {
		return f.refs[:totalLimit]
	}
	return f.refs
}

type fakeStore struct {
	mu        sync.Mutex
	products  []string
	lastSaved *models.Product
	prices    []string
	summaries []string
	existing  map[string]struct{}
	failed    []models.ProductRef
	saveErr   error
}

func (f *fakeStore) SaveProduct(p *models.Product, source string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	path := "reviews_" + p.ProductID + ".json"
	f.products = append(f.products, path)
	f.lastSaved = p
	return path, nil
}

func (f *fakeStore) SavePrice(info *models.PriceInfo) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "price_" + info.ProductID + ".json"
	f.prices = append(f.prices, path)
	return path, nil
}

func (f *fakeStore) SaveSummary(results []models.Result, operationType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, operationType)
	return operationType + "_summary.json", nil
}

func (f *fakeStore) ExistingProductIDs() map[string]struct{} {
	if f.existing == nil {
		return map[string]struct{}{}
	}
	return f.existing
}

func (f *fakeStore) FailedProducts(summaryFile string) ([]models.ProductRef, error) {
	return f.failed, nil
}

func testOrchestrator(reviews ReviewSource, prices PriceSource, fallback FallbackSource, products ProductSource, store Store) *Orchestrator {
	cfg := config.DefaultConfig()
	cfg.Scrape.APIDelay = 0
	cfg.Scrape.BatchDelay = 0
	cfg.Scrape.Workers = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reviews, prices, fallback, products, store, cfg, logger)
}

func apiReviews(n int) []models.Review {
	out := make([]models.Review, n)
	for i := range out {
		out[i] = models.Review{ReviewID: fmt.Sprintf("r%d", i), Rating: 4, Source: models.SourceAPI}
	}
	return out
}

// --- ScrapeSingle ---

func TestScrapeSingleAPISuccess(t *testing.T) {
	price := 19.99
	store := &fakeStore{}
	fallback := &fakeFallback{}
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(3)}},
		&fakePrices{price: &models.PriceInfo{ProductID: "A", CurrentPrice: &price}},
		fallback, nil, store)

	r := o.ScrapeSingle(context.Background(), "A", "Widget", true, true)

	if r.Status != models.StatusSuccess {
		t.Fatalf("status = %s", r.Status)
	}
	if r.ReviewsSource != models.SourceAPI {
		t.Errorf("source = %s", r.ReviewsSource)
	}
	if r.ReviewsCount != 3 {
		t.Errorf("reviews = %d", r.ReviewsCount)
	}
	if !r.PriceAvailable {
		t.Error("expected price available")
	}
	if len(r.FilesSaved) != 2 {
		t.Errorf("files saved = %v", r.FilesSaved)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback must not run when the API has reviews, ran %d times", fallback.calls)
	}
}

func TestScrapeSingleFallback(t *testing.T) {
	store := &fakeStore{}
	fallback := &fakeFallback{reviews: []models.Review{
		{ReviewID: "selenium_review_0", Rating: 4, Source: models.SourceBrowser},
		{ReviewID: "selenium_review_1", Rating: 2, Source: models.SourceBrowser},
	}}
	o := testOrchestrator(
		&fakeReviews{},
		&fakePrices{},
		fallback, nil, store)

	r := o.ScrapeSingle(context.Background(), "B", "", true, true)

	if r.Status != models.StatusSuccess {
		t.Fatalf("status = %s", r.Status)
	}
	if r.ReviewsSource != models.SourceBrowser {
		t.Errorf("source = %s, want selenium", r.ReviewsSource)
	}
	if r.ReviewsCount != 2 {
		t.Errorf("reviews = %d", r.ReviewsCount)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d", fallback.calls)
	}
}

func TestScrapeSingleFallbackDisabled(t *testing.T) {
	fallback := &fakeFallback{reviews: apiReviews(1)}
	o := testOrchestrator(&fakeReviews{}, &fakePrices{}, fallback, nil, &fakeStore{})

	r := o.ScrapeSingle(context.Background(), "B", "", false, true)

	if fallback.calls != 0 {
		t.Errorf("disabled fallback ran %d times", fallback.calls)
	}
	if r.Status != models.StatusNoData {
		t.Errorf("status = %s, want no_data", r.Status)
	}
	if r.ReviewsSource != "" {
		t.Errorf("source = %q, want unset without reviews", r.ReviewsSource)
	}
}

func TestScrapeSingleHighlightsOnlyNotPersisted(t *testing.T) {
	store := &fakeStore{}
	o := testOrchestrator(
		&fakeReviews{highlightsByID: map[string]json.RawMessage{
			"H": json.RawMessage(`{"positive":["durable"]}`),
		}},
		&fakePrices{}, nil, nil, store)

	r := o.ScrapeSingle(context.Background(), "H", "", false, true)

	if r.Status != models.StatusNoReviews {
		t.Fatalf("status = %s, want no_reviews", r.Status)
	}
	if len(store.products) != 0 {
		t.Errorf("review-less product persisted: %v", store.products)
	}
	if len(r.FilesSaved) != 0 {
		t.Errorf("files saved = %v", r.FilesSaved)
	}
}

func TestScrapeSinglePriceAttachedToArtifact(t *testing.T) {
	price := 12.5
	store := &fakeStore{}
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(1)}},
		&fakePrices{price: &models.PriceInfo{ProductID: "A", CurrentPrice: &price}},
		nil, nil, store)

	o.ScrapeSingle(context.Background(), "A", "", true, true)

	if store.lastSaved == nil || store.lastSaved.PriceInfo == nil {
		t.Fatal("expected price info attached to the saved product")
	}
	if *store.lastSaved.PriceInfo.CurrentPrice != 12.5 {
		t.Errorf("attached price = %v", *store.lastSaved.PriceInfo.CurrentPrice)
	}
}

func TestScrapeSingleNoReviewsButPrice(t *testing.T) {
	price := 5.0
	o := testOrchestrator(
		&fakeReviews{},
		&fakePrices{price: &models.PriceInfo{ProductID: "C", CurrentPrice: &price}},
		&fakeFallback{err: errors.New("browser crashed")}, nil, &fakeStore{})

	r := o.ScrapeSingle(context.Background(), "C", "", true, true)

	if r.Status != models.StatusNoReviews {
		t.Fatalf("status = %s, want no_reviews", r.Status)
	}
	if !r.PriceAvailable {
		t.Error("expected price available")
	}
}

func TestScrapeSinglePriceFailureKeepsSuccess(t *testing.T) {
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(1)}},
		&fakePrices{err: errors.New("price api down")},
		nil, nil, &fakeStore{})

	r := o.ScrapeSingle(context.Background(), "A", "", true, true)

	if r.Status != models.StatusSuccess {
		t.Fatalf("price failure degraded status to %s", r.Status)
	}
	if r.PriceAvailable {
		t.Error("price must not be marked available")
	}
}

func TestScrapeSinglePriceSkipped(t *testing.T) {
	price := 5.0
	store := &fakeStore{}
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(1)}},
		&fakePrices{price: &models.PriceInfo{ProductID: "A", CurrentPrice: &price}},
		nil, nil, store)

	r := o.ScrapeSingle(context.Background(), "A", "", true, false)

	if r.PriceAvailable {
		t.Error("price must not be fetched when disabled")
	}
	if len(store.prices) != 0 {
		t.Errorf("price artifacts written: %v", store.prices)
	}
	if r.Status != models.StatusSuccess {
		t.Errorf("status = %s", r.Status)
	}
}

func TestScrapeSingleRecoversPanic(t *testing.T) {
	o := testOrchestrator(
		&fakeReviews{panicOn: "A"},
		&fakePrices{},
		nil, nil, &fakeStore{})

	r := o.ScrapeSingle(context.Background(), "A", "", true, true)

	if r.Status != models.StatusError {
		t.Fatalf("status = %s, want error", r.Status)
	}
	if r.Error == "" {
		t.Error("expected error message from recovered panic")
	}
}

// --- Batches ---

func TestScrapeBatchMixedOutcomes(t *testing.T) {
	reviews := &fakeReviews{
		reviewsByID: map[string][]models.Review{
			"1": apiReviews(2), "2": apiReviews(1), "4": apiReviews(3), "5": apiReviews(1),
		},
		panicOn: "3",
	}
	store := &fakeStore{}
	o := testOrchestrator(reviews, &fakePrices{}, nil, nil, store)

	var batch []models.ProductRef
	for i := 1; i <= 5; i++ {
		batch = append(batch, models.ProductRef{ProductID: fmt.Sprintf("%d", i)})
	}

	results := o.ScrapeBatch(context.Background(), batch, false)

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	summary := models.Summarize("", 0, results)
	if summary.Successful != 4 {
		t.Errorf("successful = %d, want 4", summary.Successful)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if len(store.summaries) != 1 || store.summaries[0] != "batch_scraping" {
		t.Errorf("summaries = %v", store.summaries)
	}
}

func TestScrapeBatchSequentialWorker(t *testing.T) {
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(1), "B": apiReviews(1)}},
		&fakePrices{}, nil, nil, &fakeStore{})
	o.cfg.Scrape.Workers = 1

	results := o.ScrapeBatch(context.Background(), []models.ProductRef{
		{ProductID: "A"}, {ProductID: "B"},
	}, false)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Sequential mode preserves input order.
	if results[0].ProductID != "A" || results[1].ProductID != "B" {
		t.Errorf("order = %s, %s", results[0].ProductID, results[1].ProductID)
	}
}

func TestDiscoverAndScrapeSkipsExisting(t *testing.T) {
	store := &fakeStore{existing: map[string]struct{}{"A": {}}}
	products := &fakeProducts{refs: []models.ProductRef{
		{ProductID: "A"}, {ProductID: "B"},
	}}
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"B": apiReviews(1)}},
		&fakePrices{}, nil, products, store)

	results := o.DiscoverAndScrape(context.Background(), 10, true, false)

	if len(results) != 1 {
		t.Fatalf("expected only B scraped, got %d results", len(results))
	}
	if results[0].ProductID != "B" {
		t.Errorf("scraped %s, want B", results[0].ProductID)
	}
	if len(store.summaries) != 1 || store.summaries[0] != "discovery_scraping" {
		t.Errorf("summaries = %v", store.summaries)
	}
}

func TestResumeFailed(t *testing.T) {
	store := &fakeStore{failed: []models.ProductRef{{ProductID: "X"}}}
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"X": apiReviews(2)}},
		&fakePrices{}, nil, nil, store)

	results, err := o.ResumeFailed(context.Background(), "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.StatusSuccess {
		t.Fatalf("results = %v", results)
	}
	if len(store.summaries) != 1 || store.summaries[0] != "retry_scraping" {
		t.Errorf("summaries = %v", store.summaries)
	}
}

func TestResumeFailedEmpty(t *testing.T) {
	store := &fakeStore{}
	o := testOrchestrator(&fakeReviews{}, &fakePrices{}, nil, nil, store)

	results, err := o.ResumeFailed(context.Background(), "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
	if len(store.summaries) != 0 {
		t.Error("no summary should be written for an empty resume set")
	}
}

func TestScrapeSingleSaveFailure(t *testing.T) {
	o := testOrchestrator(
		&fakeReviews{reviewsByID: map[string][]models.Review{"A": apiReviews(1)}},
		&fakePrices{},
		nil, nil, &fakeStore{saveErr: errors.New("disk full")})

	r := o.ScrapeSingle(context.Background(), "A", "", true, true)
	if r.Status != models.StatusError {
		t.Fatalf("status = %s, want error", r.Status)
	}
}
