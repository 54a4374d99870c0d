package scraper

import (
	"io"
	"log/slog"

	"github.com/alejandrocano/ctscrape/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points every endpoint at the test server and removes the
// pacing delays so tests run fast.
func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.ReviewsURL = baseURL + "/reviews"
	cfg.API.HighlightsURL = baseURL + "/highlights/%s"
	cfg.API.FeaturesURL = baseURL + "/features"
	cfg.API.SearchURL = baseURL + "/search"
	cfg.API.PriceURL = baseURL + "/price"
	cfg.Scrape.APIDelay = 0
	cfg.Scrape.BatchDelay = 0
	cfg.Scrape.BrowserDelay = 0
	return cfg
}
