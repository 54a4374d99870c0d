package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
	"github.com/alejandrocano/ctscrape/internal/orchestrator"
	"github.com/alejandrocano/ctscrape/internal/scraper"
	"github.com/alejandrocano/ctscrape/internal/store"
)

var (
	cfgFile         string
	verbose         bool
	noFallback      bool
	noPrice         bool
	productName     string
	workers         int
	batchSize       int
	batchFile       string
	totalLimit      int
	includeExisting bool
	summaryFile     string
	searchTerm      string
	searchMax       int
	minRating       float64
	minReviews      int
	categories      []string
	withIndexes     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ctscrape",
		Short: "Canadian Tire product review and price scraper",
		Long: `ctscrape collects product reviews, ratings, and price snapshots from
Canadian Tire's public APIs, falling back to a headless browser when a
product's reviews never surface through the API.

Scraped data lands as JSON artifacts on disk and can be batch-loaded
into MongoDB with the load subcommand.

Credentials are read from the environment (or a .env file):
  BV_BFD_TOKEN                review API token
  OCP_APIM_SUBSCRIPTION_KEY   API gateway subscription key`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(singleCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func singleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "single [product-id]",
		Short: "Scrape one product's reviews and price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(true)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			result := app.orch.ScrapeSingle(ctx, args[0], productName, !noFallback, !noPrice)
			printResults([]models.Result{result})
			return requireSuccess([]models.Result{result})
		},
	}
	cmd.Flags().StringVar(&productName, "name", "", "product name for logs and artifacts")
	cmd.Flags().BoolVar(&noPrice, "no-price", false, "skip the price snapshot")
	cmd.Flags().BoolVar(&noFallback, "no-selenium", false, "disable the browser fallback")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scrape a list of products from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(true)
			if err != nil {
				return err
			}
			products, err := loadProductList(batchFile)
			if err != nil {
				return fmt.Errorf("load product list: %w", err)
			}
			if workers > 0 {
				app.cfg.Scrape.Workers = workers
			}
			if batchSize > 0 {
				app.cfg.Scrape.BatchSize = batchSize
			}

			ctx, cancel := signalContext()
			defer cancel()

			results := app.orch.ScrapeBatch(ctx, products, !noFallback)
			printResults(results)
			return requireSuccess(results)
		},
	}
	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON file with product ids or objects")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "concurrent workers per batch (0 = config default)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "products per batch (0 = config default)")
	cmd.Flags().BoolVar(&noFallback, "no-selenium", false, "disable the browser fallback")
	cmd.MarkFlagRequired("file")
	return cmd
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover products via search and scrape them",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(true)
			if err != nil {
				return err
			}
			if workers > 0 {
				app.cfg.Scrape.Workers = workers
			}

			ctx, cancel := signalContext()
			defer cancel()

			results := app.orch.DiscoverAndScrape(ctx, totalLimit, !includeExisting, !noFallback)
			printResults(results)
			return requireSuccess(results)
		},
	}
	cmd.Flags().IntVarP(&totalLimit, "total", "t", 100, "maximum products to discover")
	cmd.Flags().BoolVar(&includeExisting, "include-existing", false, "re-scrape products already on disk")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "concurrent workers per batch (0 = config default)")
	cmd.Flags().BoolVar(&noFallback, "no-selenium", false, "disable the browser fallback")
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Retry products that failed in a previous run",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(true)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			results, err := app.orch.ResumeFailed(ctx, summaryFile, !noFallback)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("Nothing to resume.")
				return nil
			}
			printResults(results)
			return requireSuccess(results)
		},
	}
	cmd.Flags().StringVarP(&summaryFile, "summary-file", "s", "", "summary file to resume from (default: most recent)")
	cmd.Flags().BoolVar(&noFallback, "no-selenium", false, "disable the browser fallback")
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search the product catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := searchTerm
			if term == "" && len(args) > 0 {
				term = args[0]
			}
			if term == "" {
				return fmt.Errorf("a search term is required (--term or positional argument)")
			}

			app, err := buildApp(true)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			found := app.searcher.Search(ctx, term, searchMax)
			found = scraper.Filter(found, scraper.FilterCriteria{
				MinRating:  minRating,
				MinReviews: minReviews,
				Categories: categories,
			})

			for _, p := range found {
				rating := "-"
				if p.Rating != nil {
					rating = fmt.Sprintf("%.1f", *p.Rating)
				}
				fmt.Printf("%-12s  %-6s  %s\n", p.ProductID, rating, p.Name)
			}
			fmt.Printf("\n%d products\n", len(found))
			return nil
		},
	}
	cmd.Flags().StringVar(&searchTerm, "term", "", "search term (alternative to the positional argument)")
	cmd.Flags().IntVarP(&searchMax, "max-results", "m", 50, "maximum results")
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "minimum star rating")
	cmd.Flags().IntVar(&minReviews, "min-reviews", 0, "minimum review count")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "only include these categories (repeatable)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show on-disk artifact statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(false)
			if err != nil {
				return err
			}
			stats := app.files.Stats()
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func cleanCmd() *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old run summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(false)
			if err != nil {
				return err
			}
			removed := app.files.CleanupSummaries(time.Duration(maxAgeDays) * 24 * time.Hour)
			fmt.Printf("Removed %d summary files older than %d days\n", removed, maxAgeDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "older-than", 30, "remove summaries older than this many days")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load scraped artifacts into MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(false)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			loader, err := store.NewMongoLoader(ctx, app.cfg, app.files, app.logger)
			if err != nil {
				return err
			}
			defer loader.Close()

			if withIndexes {
				if err := loader.EnsureIndexes(ctx); err != nil {
					return err
				}
			}

			stats, err := loader.LoadArtifacts(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Products: %d\nReviews:  %d\nPrices:   %d\n",
				stats.ProductsLoaded, stats.ReviewsLoaded, stats.PricesLoaded)
			if len(stats.Errors) > 0 {
				fmt.Printf("Errors:   %d (first: %s)\n", len(stats.Errors), stats.Errors[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withIndexes, "ensure-indexes", true, "create unique indexes before loading")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("API:\n")
			fmt.Printf("  Store ID:         %s\n", cfg.API.StoreID)
			fmt.Printf("  Timeout:          %s\n", cfg.API.Timeout)
			fmt.Printf("\nScrape:\n")
			fmt.Printf("  Max Reviews:      %d\n", cfg.Scrape.MaxReviews)
			fmt.Printf("  Review Page Size: %d\n", cfg.Scrape.ReviewPageLimit)
			fmt.Printf("  Workers:          %d\n", cfg.Scrape.Workers)
			fmt.Printf("  Batch Size:       %d\n", cfg.Scrape.BatchSize)
			fmt.Printf("  API Delay:        %s\n", cfg.Scrape.APIDelay)
			fmt.Printf("  Batch Delay:      %s\n", cfg.Scrape.BatchDelay)
			fmt.Printf("  Search Terms:     %d configured\n", len(cfg.Scrape.SearchTerms))
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Headless:         %v\n", cfg.Browser.Headless)
			fmt.Printf("  Page Timeout:     %s\n", cfg.Browser.PageTimeout)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Base Path:        %s\n", cfg.Storage.BasePath)
			fmt.Printf("\nMongo:\n")
			fmt.Printf("  Database:         %s\n", cfg.Mongo.Database)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ctscrape %s\n", config.Version)
		},
	}
}

// app bundles the wired pipeline for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	files    *store.DataManager
	searcher *scraper.ProductSearcher
	orch     *orchestrator.Orchestrator
}

// buildApp loads config and wires the pipeline. Credential validation is
// skipped for commands that never touch the retailer APIs.
func buildApp(needsCredentials bool) (*app, error) {
	// A missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)

	cfg.Credentials = config.CredentialsFromEnv()
	if needsCredentials {
		if err := config.ValidateCredentials(cfg.Credentials); err != nil {
			return nil, err
		}
	}

	files, err := store.NewDataManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := scraper.NewClient(cfg, logger)
	reviews := scraper.NewReviewScraper(client, cfg, logger)
	prices := scraper.NewPriceScraper(client, cfg, logger)
	searcher := scraper.NewProductSearcher(client, cfg, logger)
	browser := scraper.NewBrowserScraper(searcher, cfg, logger)

	orch := orchestrator.New(reviews, prices, browser, searcher, files, cfg, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		files:    files,
		searcher: searcher,
		orch:     orch,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadProductList reads a product list from JSON, tolerating the formats
// earlier runs produced: a bare list of id strings, a list of objects, or a
// wrapper object holding the list under products, results, or all_products.
func loadProductList(path string) ([]models.ProductRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		out := make([]models.ProductRef, 0, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, models.ProductRef{ProductID: id})
			}
		}
		return out, nil
	}

	var refs []models.ProductRef
	if err := json.Unmarshal(data, &refs); err == nil {
		return nonEmptyRefs(refs), nil
	}

	var wrapper struct {
		Products    []models.ProductRef `json:"products"`
		Results     []models.ProductRef `json:"results"`
		AllProducts []models.ProductRef `json:"all_products"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unrecognized product list format: %w", err)
	}
	for _, refs := range [][]models.ProductRef{wrapper.Products, wrapper.Results, wrapper.AllProducts} {
		if len(refs) > 0 {
			return nonEmptyRefs(refs), nil
		}
	}
	return nil, fmt.Errorf("no products found in %s", path)
}

func nonEmptyRefs(refs []models.ProductRef) []models.ProductRef {
	out := make([]models.ProductRef, 0, len(refs))
	for _, r := range refs {
		if r.ProductID != "" {
			out = append(out, r)
		}
	}
	return out
}

func printResults(results []models.Result) {
	summary := models.Summarize("", 0, results)
	fmt.Printf("\nScraped %d products: %d successful, %d failed, %d without data\n",
		summary.TotalProducts, summary.Successful, summary.Failed, summary.NoData)
	for _, r := range results {
		line := fmt.Sprintf("  %-12s %-12s reviews=%d", r.ProductID, r.Status, r.ReviewsCount)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}
}

// requireSuccess makes the process exit non-zero when nothing was scraped.
func requireSuccess(results []models.Result) error {
	for _, r := range results {
		if r.Status == models.StatusSuccess {
			return nil
		}
	}
	return fmt.Errorf("no products scraped successfully")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if strings.EqualFold(cfg.Logging.Level, "debug") {
		level = slog.LevelDebug
	} else if strings.EqualFold(cfg.Logging.Level, "warn") {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
