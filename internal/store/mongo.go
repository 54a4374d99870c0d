package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// MongoLoader batch-loads the on-disk JSON artifacts into a MongoDB
// database: products, reviews, and prices collections. Loading is
// idempotent for products (upsert) and reviews (insert-if-absent by review
// id); prices are append-only snapshots.
type MongoLoader struct {
	client *mongo.Client
	db     *mongo.Database
	files  *DataManager
	logger *slog.Logger
}

// NewMongoLoader connects to MongoDB and verifies the connection.
func NewMongoLoader(ctx context.Context, cfg *config.Config, files *DataManager, logger *slog.Logger) (*MongoLoader, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, &models.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, &models.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	return &MongoLoader{
		client: client,
		db:     client.Database(cfg.Mongo.Database),
		files:  files,
		logger: logger.With("component", "mongo_loader"),
	}, nil
}

// Close disconnects from MongoDB.
func (l *MongoLoader) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the loader's idempotency depends on.
func (l *MongoLoader) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	specs := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{"products", mongo.IndexModel{Keys: bson.D{{Key: "product_id", Value: 1}}, Options: unique}},
		{"reviews", mongo.IndexModel{Keys: bson.D{{Key: "review_id", Value: 1}}, Options: unique}},
		{"prices", mongo.IndexModel{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "scraped_at", Value: 1}}}},
	}
	for _, spec := range specs {
		if _, err := l.db.Collection(spec.collection).Indexes().CreateOne(ctx, spec.model); err != nil {
			return &models.StorageError{Backend: "mongodb", Err: fmt.Errorf("index on %s: %w", spec.collection, err)}
		}
	}
	return nil
}

// LoadStats reports what one LoadArtifacts run moved into MongoDB.
type LoadStats struct {
	ProductsLoaded int      `json:"products_loaded"`
	ReviewsLoaded  int      `json:"reviews_loaded"`
	PricesLoaded   int      `json:"prices_loaded"`
	Errors         []string `json:"errors,omitempty"`
}

// LoadArtifacts walks the artifact folders and loads everything found.
// Per-file failures are recorded in the stats and do not stop the run.
func (l *MongoLoader) LoadArtifacts(ctx context.Context) (*LoadStats, error) {
	stats := &LoadStats{}

	l.loadReviewFolder(ctx, l.files.ReviewDir(), "reviews_*.json", models.SourceAPI, stats)
	l.loadReviewFolder(ctx, l.files.BrowserDir(), "selenium_reviews_*.json", models.SourceBrowser, stats)
	l.loadPriceFolder(ctx, stats)

	l.logger.Info("artifact load complete",
		"products", stats.ProductsLoaded,
		"reviews", stats.ReviewsLoaded,
		"prices", stats.PricesLoaded,
		"errors", len(stats.Errors))
	return stats, nil
}

func (l *MongoLoader) loadReviewFolder(ctx context.Context, dir, pattern, source string, stats *LoadStats) {
	matches, _ := filepath.Glob(filepath.Join(dir, pattern))
	l.logger.Info("loading review artifacts", "dir", dir, "files", len(matches))

	for _, path := range matches {
		productID := productIDFromFilename(filepath.Base(path))
		if productID == "" {
			continue
		}

		artifact, err := l.files.LoadProduct(productID)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		if err := l.upsertProduct(ctx, artifact); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		stats.ProductsLoaded++

		saved, err := l.insertReviews(ctx, productID, artifact.Reviews, source)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		stats.ReviewsLoaded += saved
	}
}

func (l *MongoLoader) loadPriceFolder(ctx context.Context, stats *LoadStats) {
	matches, _ := filepath.Glob(filepath.Join(l.files.PriceDir(), "price_*.json"))
	l.logger.Info("loading price artifacts", "files", len(matches))

	for _, path := range matches {
		var info models.PriceInfo
		if err := readJSONFile(path, &info); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		saved, err := l.insertPrice(ctx, &info)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if saved {
			stats.PricesLoaded++
		}
	}
}

// upsertProduct writes the product header document keyed by product_id.
func (l *MongoLoader) upsertProduct(ctx context.Context, artifact *ReviewArtifact) error {
	info := artifact.ProductInfo
	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":           info.Name,
			"category":       info.Category,
			"brand":          info.Brand,
			"url":            info.URL,
			"total_reviews":  len(artifact.Reviews),
			"average_rating": roundRating(averageRating(artifact.Reviews)),
			"scraping_date":  info.ScrapedAt,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"product_id": info.ProductID,
			"created_at": now,
		},
	}

	_, err := l.db.Collection("products").UpdateOne(ctx,
		bson.M{"product_id": info.ProductID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", info.ProductID, err)
	}
	return nil
}

// insertReviews inserts each review not already present, by review id alone.
// Author, title, or text matching an existing review never suppresses an
// insert; only the id does. Missing authors get Anonymous_<n> placeholders.
func (l *MongoLoader) insertReviews(ctx context.Context, productID string, reviews []models.Review, source string) (int, error) {
	collection := l.db.Collection("reviews")
	saved := 0
	anonymousCounter := 1

	for _, review := range dedupeByReviewID(reviews) {
		if review.ReviewID == "" {
			l.logger.Warn("skipping review without id", "product_id", productID)
			continue
		}

		author := review.Author
		if author == "" {
			author = "Anonymous_" + strconv.Itoa(anonymousCounter)
			anonymousCounter++
		}

		doc := bson.M{
			"product_id":             productID,
			"review_id":              review.ReviewID,
			"author":                 author,
			"rating":                 review.Rating,
			"title":                  review.Title,
			"text":                   review.Text,
			"submission_time_string": reviewTimeString(review),
			"verified_purchase":      review.VerifiedPurchase,
			"comments":               review.Comments,
			"source":                 source,
			"created_at":             time.Now().UTC(),
		}
		if parsed, ok := parseReviewTime(reviewTimeString(review)); ok {
			doc["submission_time"] = parsed
		}

		count, err := collection.CountDocuments(ctx, bson.M{"review_id": review.ReviewID})
		if err != nil {
			return saved, fmt.Errorf("lookup review %s: %w", review.ReviewID, err)
		}
		if count > 0 {
			l.logger.Debug("review already loaded", "review_id", review.ReviewID)
			continue
		}

		if _, err := collection.InsertOne(ctx, doc); err != nil {
			// A concurrent loader can win the race between lookup and
			// insert; the unique index makes that a skip, not a failure.
			if mongo.IsDuplicateKeyError(err) {
				l.logger.Debug("duplicate review id", "review_id", review.ReviewID)
				continue
			}
			return saved, fmt.Errorf("insert review %s: %w", review.ReviewID, err)
		}
		saved++
	}
	return saved, nil
}

// insertPrice appends one price snapshot. Snapshots with no positive current
// price are skipped, not errors.
func (l *MongoLoader) insertPrice(ctx context.Context, info *models.PriceInfo) (bool, error) {
	if info.CurrentPrice == nil || *info.CurrentPrice <= 0 {
		l.logger.Warn("no valid price", "product_id", info.ProductID)
		return false, nil
	}

	inventory := 0
	if info.InventoryCount != nil {
		inventory = *info.InventoryCount
	}

	doc := bson.M{
		"product_id":           info.ProductID,
		"current_price":        *info.CurrentPrice,
		"original_price":       info.OriginalPrice,
		"sale_price":           info.SalePrice,
		"currency":             info.Currency,
		"in_stock":             info.InStock,
		"inventory_count":      inventory,
		"store_shelf_location": info.StoreAvailability.StoreShelfLocation,
		"urgent_low_stock":     info.StoreAvailability.UrgentLowStock,
		"warranty":             info.StoreAvailability.Warranty,
		"scraped_at_string":    info.ScrapedAt,
		"timestamp":            time.Now().UTC(),
	}
	if parsed, ok := parseReviewTime(info.ScrapedAt); ok {
		doc["scraped_at"] = parsed
	}

	if _, err := l.db.Collection("prices").InsertOne(ctx, doc); err != nil {
		return false, fmt.Errorf("insert price %s: %w", info.ProductID, err)
	}
	return true, nil
}

// dedupeByReviewID keeps the first occurrence of each review id within one
// artifact. Reviews without an id pass through for the caller to skip.
func dedupeByReviewID(reviews []models.Review) []models.Review {
	seen := make(map[string]struct{}, len(reviews))
	out := make([]models.Review, 0, len(reviews))
	for _, r := range reviews {
		if r.ReviewID != "" {
			if _, dup := seen[r.ReviewID]; dup {
				continue
			}
			seen[r.ReviewID] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

// reviewTimeString picks the best timestamp the review carries.
func reviewTimeString(r models.Review) string {
	if r.SubmissionTime != "" {
		return r.SubmissionTime
	}
	return r.Date
}

var fractionalSecondsRe = regexp.MustCompile(`\.\d+.*$`)

// parseReviewTime parses the timestamp formats seen in artifacts: ISO 8601
// with or without fractional seconds and zone, and several date-only
// layouts. Relative dates ("2 months ago") do not parse.
func parseReviewTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	clean := fractionalSecondsRe.ReplaceAllString(s, "")
	for _, layout := range []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
		"2006/01/02",
	} {
		if t, err := time.Parse(layout, clean); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func averageRating(reviews []models.Review) float64 {
	sum, n := 0, 0
	for _, r := range reviews {
		if r.Rating > 0 {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func roundRating(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
