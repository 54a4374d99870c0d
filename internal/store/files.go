package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// ReviewArtifact is the on-disk shape of one product's scraped review data.
type ReviewArtifact struct {
	ProductInfo ArtifactProductInfo `json:"product_info"`
	PriceInfo   *models.PriceInfo   `json:"price_info,omitempty"`
	Reviews     []models.Review     `json:"reviews"`
	Highlights  json.RawMessage     `json:"highlights"`
	Features    []map[string]any    `json:"features"`
	ScrapedWith string              `json:"scraped_with"` // "api" or "selenium"
}

// ArtifactProductInfo is the product header inside a review artifact.
type ArtifactProductInfo struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Brand     string `json:"brand"`
	URL       string `json:"url"`
	ScrapedAt string `json:"scraped_at"`
}

// DataManager owns the on-disk artifact layout: per-product review and price
// JSON files plus timestamped run summaries. Scanning artifacts and
// summaries gives the already-scraped set that makes runs incremental.
type DataManager struct {
	basePath   string
	reviewDir  string
	browserDir string
	priceDir   string
	summaryDir string
	logger     *slog.Logger
}

// NewDataManager creates the storage folders if needed.
func NewDataManager(cfg *config.Config, logger *slog.Logger) (*DataManager, error) {
	base := cfg.Storage.BasePath
	m := &DataManager{
		basePath:   base,
		reviewDir:  filepath.Join(base, cfg.Storage.ReviewFolder),
		browserDir: filepath.Join(base, cfg.Storage.BrowserFolder),
		priceDir:   filepath.Join(base, cfg.Storage.PriceFolder),
		summaryDir: filepath.Join(base, cfg.Storage.SummaryFolder),
		logger:     logger.With("component", "data_manager"),
	}

	for _, dir := range []string{m.reviewDir, m.browserDir, m.priceDir, m.summaryDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &models.StorageError{Backend: "files", Err: fmt.Errorf("create dir %s: %w", dir, err)}
		}
	}
	return m, nil
}

// ReviewDir returns the API-sourced artifact folder.
func (m *DataManager) ReviewDir() string { return m.reviewDir }

// BrowserDir returns the fallback-sourced artifact folder.
func (m *DataManager) BrowserDir() string { return m.browserDir }

// PriceDir returns the price artifact folder.
func (m *DataManager) PriceDir() string { return m.priceDir }

// SaveProduct writes a product's review artifact into the folder for its
// source and returns the file path.
func (m *DataManager) SaveProduct(p *models.Product, source string) (string, error) {
	var path string
	if source == models.SourceBrowser {
		path = filepath.Join(m.browserDir, "selenium_reviews_"+p.ProductID+".json")
	} else {
		path = filepath.Join(m.reviewDir, "reviews_"+p.ProductID+".json")
	}

	artifact := ReviewArtifact{
		ProductInfo: ArtifactProductInfo{
			ProductID: p.ProductID,
			Name:      p.Name,
			Category:  p.Category,
			Brand:     p.Brand,
			URL:       p.URL,
			ScrapedAt: p.ScrapedAt,
		},
		PriceInfo:   p.PriceInfo,
		Reviews:     p.Reviews,
		Highlights:  p.Highlights,
		Features:    p.Features,
		ScrapedWith: source,
	}

	if err := writeJSON(path, artifact); err != nil {
		return "", err
	}
	m.logger.Info("saved product data", "path", path, "reviews", len(p.Reviews))
	return path, nil
}

// SavePrice writes one price snapshot artifact and returns the file path.
func (m *DataManager) SavePrice(info *models.PriceInfo) (string, error) {
	path := filepath.Join(m.priceDir, "price_"+info.ProductID+".json")
	if err := writeJSON(path, info); err != nil {
		return "", err
	}
	m.logger.Info("saved price data", "path", path)
	return path, nil
}

// LoadProduct reads a product's review artifact from whichever folder holds
// it, or returns os.ErrNotExist.
func (m *DataManager) LoadProduct(productID string) (*ReviewArtifact, error) {
	candidates := []string{
		filepath.Join(m.reviewDir, "reviews_"+productID+".json"),
		filepath.Join(m.browserDir, "selenium_reviews_"+productID+".json"),
		filepath.Join(m.basePath, "reviews_"+productID+".json"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var artifact ReviewArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			m.logger.Warn("unreadable artifact", "path", path, "error", err)
			continue
		}
		return &artifact, nil
	}
	return nil, os.ErrNotExist
}

// ExistingProductIDs computes the already-scraped set: product ids found in
// artifact filenames, unioned with ids recorded as successful in any
// summary file. Supports resumable, incremental runs.
func (m *DataManager) ExistingProductIDs() map[string]struct{} {
	scraped := make(map[string]struct{})

	patterns := []string{
		filepath.Join(m.reviewDir, "reviews_*.json"),
		filepath.Join(m.browserDir, "selenium_reviews_*.json"),
		filepath.Join(m.basePath, "reviews_*.json"), // legacy flat layout
	}
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, path := range matches {
			if id := productIDFromFilename(filepath.Base(path)); id != "" {
				scraped[id] = struct{}{}
			}
		}
	}

	for _, path := range m.summaryFiles() {
		summary, err := readSummary(path)
		if err != nil {
			m.logger.Warn("could not load summary", "path", path, "error", err)
			continue
		}
		for _, r := range summary.Results {
			if r.Status == models.StatusSuccess && r.ProductID != "" {
				scraped[r.ProductID] = struct{}{}
			}
		}
	}

	m.logger.Info("previously scraped products", "count", len(scraped))
	return scraped
}

// SaveSummary persists a run summary to a timestamped file and returns the
// file path.
func (m *DataManager) SaveSummary(results []models.Result, operationType string) (string, error) {
	ts := time.Now().Unix()
	summary := models.Summarize(operationType, ts, results)

	path := filepath.Join(m.summaryDir, fmt.Sprintf("%s_summary_%d.json", operationType, ts))
	if err := writeJSON(path, summary); err != nil {
		return "", err
	}
	m.logger.Info("summary saved", "path", path,
		"successful", summary.Successful, "failed", summary.Failed, "no_data", summary.NoData)
	return path, nil
}

// FailedProducts computes the resume set from a summary file (the most
// recent one when summaryFile is empty): products whose recorded outcome was
// anything short of success and which are not in the already-scraped set.
func (m *DataManager) FailedProducts(summaryFile string) ([]models.ProductRef, error) {
	if summaryFile == "" {
		files := m.summaryFiles()
		if len(files) == 0 {
			return nil, nil
		}
		summaryFile = newestFile(files)
	}

	summary, err := readSummary(summaryFile)
	if err != nil {
		return nil, &models.StorageError{Backend: "files", Err: fmt.Errorf("load summary %s: %w", summaryFile, err)}
	}

	scraped := m.ExistingProductIDs()

	var failed []models.ProductRef
	seen := make(map[string]struct{})
	for _, r := range summary.Results {
		if r.Status == models.StatusSuccess {
			continue
		}
		if r.ProductID == "" {
			continue
		}
		if _, done := scraped[r.ProductID]; done {
			continue
		}
		if _, dup := seen[r.ProductID]; dup {
			continue
		}
		seen[r.ProductID] = struct{}{}
		failed = append(failed, models.ProductRef{
			ProductID: r.ProductID,
			Name:      r.Name,
		})
	}

	m.logger.Info("failed products to retry", "count", len(failed), "summary", summaryFile)
	return failed, nil
}

// Stats summarizes what is on disk.
type Stats struct {
	TotalScrapedProducts int               `json:"total_scraped_products"`
	APIReviewFiles       int               `json:"api_review_files"`
	BrowserReviewFiles   int               `json:"selenium_review_files"`
	PriceFiles           int               `json:"price_files"`
	DataFolders          map[string]string `json:"data_folders"`
}

// Stats counts artifacts by type.
func (m *DataManager) Stats() Stats {
	count := func(pattern string) int {
		matches, _ := filepath.Glob(pattern)
		return len(matches)
	}
	return Stats{
		TotalScrapedProducts: len(m.ExistingProductIDs()),
		APIReviewFiles:       count(filepath.Join(m.reviewDir, "reviews_*.json")),
		BrowserReviewFiles:   count(filepath.Join(m.browserDir, "selenium_reviews_*.json")),
		PriceFiles:           count(filepath.Join(m.priceDir, "price_*.json")),
		DataFolders: map[string]string{
			"reviews":          m.reviewDir,
			"selenium_reviews": m.browserDir,
			"prices":           m.priceDir,
			"summaries":        m.summaryDir,
		},
	}
}

// CleanupSummaries removes summary files older than maxAge and returns how
// many were removed.
func (m *DataManager) CleanupSummaries(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	matches, _ := filepath.Glob(filepath.Join(m.summaryDir, "*.json"))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
			m.logger.Info("removed old summary", "path", path)
		}
	}
	return removed
}

// summaryFiles lists summary files in the summary folder and the legacy
// flat layout.
func (m *DataManager) summaryFiles() []string {
	var files []string
	for _, pattern := range []string{
		filepath.Join(m.summaryDir, "*.json"),
		filepath.Join(m.basePath, "scraping_summary*.json"),
	} {
		matches, _ := filepath.Glob(pattern)
		files = append(files, matches...)
	}
	return files
}

func newestFile(files []string) string {
	newest := files[0]
	var newestTime time.Time
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newest = path
		}
	}
	return newest
}

func readSummary(path string) (*models.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var summary models.Summary
	if err := json.Unmarshal(data, &summary); err == nil &&
		(len(summary.Results) > 0 || summary.OperationType != "" || summary.TotalProducts > 0) {
		return &summary, nil
	}
	// Older runs wrote a bare result list.
	var results []models.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return &models.Summary{Results: results}, nil
}

// productIDFromFilename recovers the product id from an artifact filename.
func productIDFromFilename(name string) string {
	switch {
	case strings.HasPrefix(name, "selenium_reviews_"):
		return strings.TrimSuffix(strings.TrimPrefix(name, "selenium_reviews_"), ".json")
	case strings.HasPrefix(name, "reviews_"):
		return strings.TrimSuffix(strings.TrimPrefix(name, "reviews_"), ".json")
	default:
		return ""
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes indented UTF-8 JSON atomically (temp file, then rename).
func writeJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &models.StorageError{Backend: "files", Err: err}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return &models.StorageError{Backend: "files", Err: fmt.Errorf("encode %s: %w", path, err)}
	}
	if err := f.Close(); err != nil {
		return &models.StorageError{Backend: "files", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &models.StorageError{Backend: "files", Err: err}
	}
	return nil
}
