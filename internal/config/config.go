package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ctscrape.
type Config struct {
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"  yaml:"scrape"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"   yaml:"mongo"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Credentials are read from the environment, never from config files.
	Credentials Credentials `mapstructure:"-" yaml:"-"`
}

// APIConfig holds the retailer endpoint URLs and request parameters.
type APIConfig struct {
	ReviewsURL    string        `mapstructure:"reviews_url"    yaml:"reviews_url"`
	HighlightsURL string        `mapstructure:"highlights_url" yaml:"highlights_url"`
	FeaturesURL   string        `mapstructure:"features_url"   yaml:"features_url"`
	SearchURL     string        `mapstructure:"search_url"     yaml:"search_url"`
	PriceURL      string        `mapstructure:"price_url"      yaml:"price_url"`
	SiteURL       string        `mapstructure:"site_url"       yaml:"site_url"`
	StoreID       string        `mapstructure:"store_id"       yaml:"store_id"`
	UserAgent     string        `mapstructure:"user_agent"     yaml:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
}

// ScrapeConfig controls pagination, rate limiting, and batching.
type ScrapeConfig struct {
	ReviewPageLimit int           `mapstructure:"review_page_limit" yaml:"review_page_limit"`
	MaxReviews      int           `mapstructure:"max_reviews"       yaml:"max_reviews"`
	SearchPageRows  int           `mapstructure:"search_page_rows"  yaml:"search_page_rows"`
	MaxEmptyPages   int           `mapstructure:"max_empty_pages"   yaml:"max_empty_pages"`
	APIDelay        time.Duration `mapstructure:"api_delay"         yaml:"api_delay"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"       yaml:"batch_delay"`
	BrowserDelay    time.Duration `mapstructure:"browser_delay"     yaml:"browser_delay"`
	Workers         int           `mapstructure:"workers"           yaml:"workers"`
	BatchSize       int           `mapstructure:"batch_size"        yaml:"batch_size"`
	SearchTerms     []string      `mapstructure:"search_terms"      yaml:"search_terms"`
}

// BrowserConfig controls the headless-browser fallback scraper.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"     yaml:"headless"`
	PageTimeout time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	WindowSize  string        `mapstructure:"window_size"  yaml:"window_size"`
	MaxReviews  int           `mapstructure:"max_reviews"  yaml:"max_reviews"`
}

// StorageConfig controls the on-disk artifact layout.
type StorageConfig struct {
	BasePath      string `mapstructure:"base_path"      yaml:"base_path"`
	ReviewFolder  string `mapstructure:"review_folder"  yaml:"review_folder"`
	PriceFolder   string `mapstructure:"price_folder"   yaml:"price_folder"`
	BrowserFolder string `mapstructure:"browser_folder" yaml:"browser_folder"`
	SummaryFolder string `mapstructure:"summary_folder" yaml:"summary_folder"`
}

// MongoConfig controls the document-store loader.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Credentials holds the two API credential values required by every
// authenticated endpoint. Both come from the environment.
type Credentials struct {
	BVToken         string // BV_BFD_TOKEN
	SubscriptionKey string // OCP_APIM_SUBSCRIPTION_KEY
}

// DefaultConfig returns a Config with the retailer's known endpoints and
// the rate limits the upstream tolerates.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			ReviewsURL:    "https://apps.bazaarvoice.com/bfd/v1/clients/canadiantire-ca/api-products/cv2/resources/data/reviews.json",
			HighlightsURL: "https://rh.nexus.bazaarvoice.com/highlights/v3/1/canadiantire-ca/%s",
			FeaturesURL:   "https://apps.bazaarvoice.com/bfd/v1/clients/canadiantire-ca/api-products/sentiments/resources/sentiment/v1/features",
			SearchURL:     "https://apim.canadiantire.ca/v1/search/v2/search",
			PriceURL:      "https://apim.canadiantire.ca/v1/product/api/v2/product/sku/PriceAvailability",
			SiteURL:       "https://www.canadiantire.ca",
			StoreID:       "33",
			UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
			Timeout:       30 * time.Second,
		},
		Scrape: ScrapeConfig{
			ReviewPageLimit: 50,
			MaxReviews:      200,
			SearchPageRows:  50,
			MaxEmptyPages:   3,
			APIDelay:        500 * time.Millisecond,
			BatchDelay:      30 * time.Second,
			BrowserDelay:    2 * time.Second,
			Workers:         3,
			BatchSize:       50,
			SearchTerms: []string{
				"power tools", "hand tools", "kitchen appliances", "bathroom fixtures",
				"outdoor furniture", "camping gear", "fitness equipment", "automotive parts",
				"home security", "lighting fixtures", "storage solutions", "cleaning supplies",
				"pet supplies", "baby products", "seasonal decorations", "plumbing supplies",
				"electrical components", "paint supplies", "flooring materials", "window treatments",
				"garage organization", "lawn care", "snow removal", "pool supplies",
				"workshop equipment", "safety gear", "heating cooling", "smart home devices",
			},
		},
		Browser: BrowserConfig{
			Headless:    true,
			PageTimeout: 15 * time.Second,
			SettleDelay: 3 * time.Second,
			WindowSize:  "1920,1080",
			MaxReviews:  50,
		},
		Storage: StorageConfig{
			BasePath:      ".",
			ReviewFolder:  "data_review",
			PriceFolder:   "price_data",
			BrowserFolder: "selenium_reviews",
			SummaryFolder: "summaries",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "ctscrape",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
