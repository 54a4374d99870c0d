package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	for name, raw := range map[string]string{
		"api.reviews_url": cfg.API.ReviewsURL,
		"api.search_url":  cfg.API.SearchURL,
		"api.price_url":   cfg.API.PriceURL,
		"api.site_url":    cfg.API.SiteURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid URL: %q", name, raw)
		}
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}

	if cfg.Scrape.ReviewPageLimit < 1 {
		return fmt.Errorf("scrape.review_page_limit must be >= 1, got %d", cfg.Scrape.ReviewPageLimit)
	}
	if cfg.Scrape.MaxReviews < cfg.Scrape.ReviewPageLimit {
		return fmt.Errorf("scrape.max_reviews must be >= scrape.review_page_limit")
	}
	if cfg.Scrape.SearchPageRows < 1 {
		return fmt.Errorf("scrape.search_page_rows must be >= 1, got %d", cfg.Scrape.SearchPageRows)
	}
	if cfg.Scrape.MaxEmptyPages < 1 {
		return fmt.Errorf("scrape.max_empty_pages must be >= 1, got %d", cfg.Scrape.MaxEmptyPages)
	}
	if cfg.Scrape.APIDelay < 0 || cfg.Scrape.BatchDelay < 0 || cfg.Scrape.BrowserDelay < 0 {
		return fmt.Errorf("scrape delays must be >= 0")
	}
	if cfg.Scrape.Workers < 1 {
		return fmt.Errorf("scrape.workers must be >= 1, got %d", cfg.Scrape.Workers)
	}
	if cfg.Scrape.Workers > 16 {
		return fmt.Errorf("scrape.workers must be <= 16, got %d", cfg.Scrape.Workers)
	}
	if cfg.Scrape.BatchSize < 1 {
		return fmt.Errorf("scrape.batch_size must be >= 1, got %d", cfg.Scrape.BatchSize)
	}

	if cfg.Browser.PageTimeout <= 0 {
		return fmt.Errorf("browser.page_timeout must be > 0")
	}
	if cfg.Browser.MaxReviews < 1 {
		return fmt.Errorf("browser.max_reviews must be >= 1, got %d", cfg.Browser.MaxReviews)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateCredentials checks that both API credentials are set, naming every
// missing variable. Called before any network work is attempted.
func ValidateCredentials(creds Credentials) error {
	var missing []string
	if creds.BVToken == "" {
		missing = append(missing, "BV_BFD_TOKEN")
	}
	if creds.SubscriptionKey == "" {
		missing = append(missing, "OCP_APIM_SUBSCRIPTION_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
