package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// Credentials are always taken from the environment afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CTSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ctscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".ctscrape"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Credentials = CredentialsFromEnv()

	return cfg, nil
}

// CredentialsFromEnv reads the API credentials from the process environment.
func CredentialsFromEnv() Credentials {
	return Credentials{
		BVToken:         os.Getenv("BV_BFD_TOKEN"),
		SubscriptionKey: os.Getenv("OCP_APIM_SUBSCRIPTION_KEY"),
	}
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.reviews_url", cfg.API.ReviewsURL)
	v.SetDefault("api.highlights_url", cfg.API.HighlightsURL)
	v.SetDefault("api.features_url", cfg.API.FeaturesURL)
	v.SetDefault("api.search_url", cfg.API.SearchURL)
	v.SetDefault("api.price_url", cfg.API.PriceURL)
	v.SetDefault("api.site_url", cfg.API.SiteURL)
	v.SetDefault("api.store_id", cfg.API.StoreID)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.timeout", cfg.API.Timeout)

	v.SetDefault("scrape.review_page_limit", cfg.Scrape.ReviewPageLimit)
	v.SetDefault("scrape.max_reviews", cfg.Scrape.MaxReviews)
	v.SetDefault("scrape.search_page_rows", cfg.Scrape.SearchPageRows)
	v.SetDefault("scrape.max_empty_pages", cfg.Scrape.MaxEmptyPages)
	v.SetDefault("scrape.api_delay", cfg.Scrape.APIDelay)
	v.SetDefault("scrape.batch_delay", cfg.Scrape.BatchDelay)
	v.SetDefault("scrape.browser_delay", cfg.Scrape.BrowserDelay)
	v.SetDefault("scrape.workers", cfg.Scrape.Workers)
	v.SetDefault("scrape.batch_size", cfg.Scrape.BatchSize)
	v.SetDefault("scrape.search_terms", cfg.Scrape.SearchTerms)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.page_timeout", cfg.Browser.PageTimeout)
	v.SetDefault("browser.settle_delay", cfg.Browser.SettleDelay)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.max_reviews", cfg.Browser.MaxReviews)

	v.SetDefault("storage.base_path", cfg.Storage.BasePath)
	v.SetDefault("storage.review_folder", cfg.Storage.ReviewFolder)
	v.SetDefault("storage.price_folder", cfg.Storage.PriceFolder)
	v.SetDefault("storage.browser_folder", cfg.Storage.BrowserFolder)
	v.SetDefault("storage.summary_folder", cfg.Storage.SummaryFolder)

	v.SetDefault("mongo.uri", cfg.Mongo.URI)
	v.SetDefault("mongo.database", cfg.Mongo.Database)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
