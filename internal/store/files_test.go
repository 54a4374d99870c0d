package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

func testManager(t *testing.T) *DataManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.BasePath = t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewDataManager(cfg, logger)
	if err != nil {
		t.Fatalf("create data manager: %v", err)
	}
	return m
}

func sampleProduct(id string) *models.Product {
	p := models.NewProduct(id, "Ice Scraper Deluxe")
	p.Brand = "Mastercraft"
	price := 14.99
	p.PriceInfo = &models.PriceInfo{ProductID: id, CurrentPrice: &price, Currency: "CAD"}
	p.AddReview(models.Review{ReviewID: "r1", Author: "JohnD", Rating: 4, Text: "solid"})
	p.AddReview(models.Review{ReviewID: "r2", Author: "SarahM", Rating: 5, Text: "great"})
	return p
}

func TestSaveAndLoadProduct(t *testing.T) {
	m := testManager(t)

	path, err := m.SaveProduct(sampleProduct("0711228P"), models.SourceAPI)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "reviews_0711228P.json" {
		t.Errorf("unexpected filename: %s", path)
	}

	artifact, err := m.LoadProduct("0711228P")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if artifact.ProductInfo.ProductID != "0711228P" {
		t.Errorf("product id = %q", artifact.ProductInfo.ProductID)
	}
	if artifact.ProductInfo.Brand != "Mastercraft" {
		t.Errorf("brand = %q", artifact.ProductInfo.Brand)
	}
	if len(artifact.Reviews) != 2 {
		t.Errorf("reviews = %d", len(artifact.Reviews))
	}
	if artifact.PriceInfo == nil || *artifact.PriceInfo.CurrentPrice != 14.99 {
		t.Errorf("price info did not round-trip: %+v", artifact.PriceInfo)
	}
	if artifact.ScrapedWith != "api" {
		t.Errorf("scraped_with = %q", artifact.ScrapedWith)
	}
}

func TestSaveProductBrowserSource(t *testing.T) {
	m := testManager(t)

	path, err := m.SaveProduct(sampleProduct("123P"), models.SourceBrowser)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "selenium_reviews_123P.json" {
		t.Errorf("unexpected filename: %s", path)
	}
	if filepath.Base(filepath.Dir(path)) != "selenium_reviews" {
		t.Errorf("expected selenium_reviews folder, got %s", path)
	}
}

func TestSavePrice(t *testing.T) {
	m := testManager(t)
	price := 24.99

	path, err := m.SavePrice(&models.PriceInfo{
		ProductID:    "456P",
		CurrentPrice: &price,
		Currency:     "CAD",
		ScrapedAt:    time.Now().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("save price: %v", err)
	}
	if filepath.Base(path) != "price_456P.json" {
		t.Errorf("unexpected filename: %s", path)
	}

	var loaded models.PriceInfo
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loaded.CurrentPrice == nil || *loaded.CurrentPrice != 24.99 {
		t.Errorf("price round trip = %v", loaded.CurrentPrice)
	}
}

func TestExistingProductIDs(t *testing.T) {
	m := testManager(t)

	m.SaveProduct(sampleProduct("A"), models.SourceAPI)
	m.SaveProduct(sampleProduct("B"), models.SourceBrowser)

	// C is only recorded as successful in a summary, with no artifact.
	m.SaveSummary([]models.Result{
		{ProductID: "C", Status: models.StatusSuccess},
		{ProductID: "D", Status: models.StatusError},
	}, "batch_scraping")

	existing := m.ExistingProductIDs()

	for _, id := range []string{"A", "B", "C"} {
		if _, ok := existing[id]; !ok {
			t.Errorf("expected %s in existing set", id)
		}
	}
	if _, ok := existing["D"]; ok {
		t.Error("failed product D must not count as scraped")
	}
}

func TestSaveSummary(t *testing.T) {
	m := testManager(t)

	path, err := m.SaveSummary([]models.Result{
		{ProductID: "A", Status: models.StatusSuccess},
		{ProductID: "B", Status: models.StatusError, Error: "boom"},
		{ProductID: "C", Status: models.StatusNoReviews},
	}, "batch_scraping")
	if err != nil {
		t.Fatalf("save summary: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "batch_scraping_summary_") {
		t.Errorf("unexpected summary filename: %s", path)
	}

	summary, err := readSummary(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if summary.Successful != 1 || summary.Failed != 1 || summary.NoData != 1 {
		t.Errorf("counts = %d/%d/%d", summary.Successful, summary.Failed, summary.NoData)
	}
	if summary.TotalProducts != 3 {
		t.Errorf("total = %d", summary.TotalProducts)
	}
}

func TestFailedProducts(t *testing.T) {
	m := testManager(t)

	// B failed, but an artifact has since appeared; it must not be retried.
	m.SaveProduct(sampleProduct("B"), models.SourceAPI)

	path, err := m.SaveSummary([]models.Result{
		{ProductID: "A", Status: models.StatusError, Name: "Widget A"},
		{ProductID: "B", Status: models.StatusError},
		{ProductID: "C", Status: models.StatusNoReviews},
		{ProductID: "D", Status: models.StatusSuccess},
		{ProductID: "E", Status: models.StatusNoData},
		{ProductID: "A", Status: models.StatusError},
	}, "batch_scraping")
	if err != nil {
		t.Fatalf("save summary: %v", err)
	}

	failed, err := m.FailedProducts(path)
	if err != nil {
		t.Fatalf("failed products: %v", err)
	}

	ids := make(map[string]bool)
	for _, p := range failed {
		ids[p.ProductID] = true
	}
	if len(failed) != 3 || !ids["A"] || !ids["C"] || !ids["E"] {
		t.Fatalf("expected retry set {A, C, E}, got %v", failed)
	}
}

func TestFailedProductsLatestSummary(t *testing.T) {
	m := testManager(t)

	// No summaries yet: nothing to resume, not an error.
	failed, err := m.FailedProducts("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected empty resume set, got %v", failed)
	}

	if _, err := m.SaveSummary([]models.Result{
		{ProductID: "X", Status: models.StatusError},
	}, "batch_scraping"); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	failed, err = m.FailedProducts("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failed) != 1 || failed[0].ProductID != "X" {
		t.Fatalf("expected {X}, got %v", failed)
	}
}

func TestStats(t *testing.T) {
	m := testManager(t)

	m.SaveProduct(sampleProduct("A"), models.SourceAPI)
	m.SaveProduct(sampleProduct("B"), models.SourceBrowser)
	price := 9.99
	m.SavePrice(&models.PriceInfo{ProductID: "A", CurrentPrice: &price})

	stats := m.Stats()
	if stats.APIReviewFiles != 1 {
		t.Errorf("api files = %d", stats.APIReviewFiles)
	}
	if stats.BrowserReviewFiles != 1 {
		t.Errorf("browser files = %d", stats.BrowserReviewFiles)
	}
	if stats.PriceFiles != 1 {
		t.Errorf("price files = %d", stats.PriceFiles)
	}
	if stats.TotalScrapedProducts != 2 {
		t.Errorf("total scraped = %d", stats.TotalScrapedProducts)
	}
}

func TestProductIDFromFilename(t *testing.T) {
	cases := map[string]string{
		"reviews_0711228P.json":          "0711228P",
		"selenium_reviews_123.json":      "123",
		"price_456.json":                 "",
		"batch_scraping_summary_99.json": "",
	}
	for name, want := range cases {
		if got := productIDFromFilename(name); got != want {
			t.Errorf("productIDFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}
