package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// ReviewScraper fetches product reviews, highlights, and feature sentiments
// from the review platform's API.
type ReviewScraper struct {
	client *Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewReviewScraper creates a ReviewScraper sharing the given client.
func NewReviewScraper(client *Client, cfg *config.Config, logger *slog.Logger) *ReviewScraper {
	return &ReviewScraper{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "review_scraper"),
	}
}

// bvReview is the wire shape of one review record.
type bvReview struct {
	ID                  string      `json:"Id"`
	UserNickname        string      `json:"UserNickname"`
	Rating              int         `json:"Rating"`
	Title               string      `json:"Title"`
	ReviewText          string      `json:"ReviewText"`
	SubmissionTime      string      `json:"SubmissionTime"`
	IsVerifiedPurchaser bool        `json:"IsVerifiedPurchaser"`
	IsRecommended       *bool       `json:"IsRecommended"`
	Comments            []bvComment `json:"Comments"`
}

type bvComment struct {
	CommentText    string `json:"CommentText"`
	AuthorID       string `json:"AuthorId"`
	SubmissionTime string `json:"SubmissionTime"`
}

type reviewsResponse struct {
	Response struct {
		Results []bvReview `json:"Results"`
	} `json:"response"`
}

// FetchReviews pages through the review API for one product, accumulating
// records until an empty page or the configured cap. A non-200 response or
// an undecodable body terminates pagination early: whatever was accumulated
// is returned as the best-effort result, never an error.
func (s *ReviewScraper) FetchReviews(ctx context.Context, productID string, limit int) []models.Review {
	if limit <= 0 {
		limit = s.cfg.Scrape.ReviewPageLimit
	}

	params := url.Values{
		"resource":             {"reviews"},
		"action":               {"REVIEWS_N_STATS"},
		"filter":               {fmt.Sprintf("productid:eq:%s", productID)},
		"filter_reviews":       {"contentlocale:eq:en*,fr*,en_CA,en_CA"},
		"filter_isratingsonly": {"eq:false"},
		"include":              {"authors,products,comments"},
		"filteredstats":        {"reviews"},
		"Stats":                {"Reviews"},
		"limit":                {strconv.Itoa(limit)},
		"limit_comments":       {"3"},
		"sort":                 {"submissiontime:desc"},
		"apiversion":           {"5.5"},
		"displaycode":          {"15041_3_0-en_ca"},
	}

	var all []models.Review
	offset := 0

	s.logger.Info("fetching reviews", "product_id", productID)

	for {
		params.Set("offset", strconv.Itoa(offset))

		var page reviewsResponse
		if err := s.client.GetJSON(ctx, s.cfg.API.ReviewsURL, params, &page); err != nil {
			s.logger.Warn("review pagination terminated early",
				"product_id", productID, "offset", offset, "error", err)
			break
		}

		if len(page.Response.Results) == 0 {
			break
		}

		for _, raw := range page.Response.Results {
			all = append(all, parseReview(raw))
		}
		offset += limit

		if len(all) >= s.cfg.Scrape.MaxReviews {
			s.logger.Info("review cap reached", "product_id", productID, "count", len(all))
			break
		}

		sleepCtx(ctx, s.cfg.Scrape.APIDelay)
	}

	s.logger.Info("reviews fetched", "product_id", productID, "count", len(all))
	return all
}

// parseReview converts a wire record into the domain model.
func parseReview(raw bvReview) models.Review {
	var comments []models.Comment
	for _, c := range raw.Comments {
		comments = append(comments, models.Comment{
			CommentText:    c.CommentText,
			Author:         c.AuthorID,
			SubmissionTime: c.SubmissionTime,
		})
	}

	return models.Review{
		ReviewID:         raw.ID,
		Author:           raw.UserNickname,
		Rating:           raw.Rating,
		Title:            raw.Title,
		Text:             raw.ReviewText,
		Date:             raw.SubmissionTime,
		Source:           models.SourceAPI,
		VerifiedPurchase: raw.IsVerifiedPurchaser,
		Recommendation:   raw.IsRecommended,
		SubmissionTime:   raw.SubmissionTime,
		Comments:         comments,
	}
}

// FetchHighlights fetches the review-highlights blob for a product.
// Best-effort: failures return an empty blob.
func (s *ReviewScraper) FetchHighlights(ctx context.Context, productID string) json.RawMessage {
	var out struct {
		Subjects json.RawMessage `json:"subjects"`
	}
	u := fmt.Sprintf(s.cfg.API.HighlightsURL, productID)
	if err := s.client.GetJSON(ctx, u, nil, &out); err != nil {
		s.logger.Warn("could not fetch highlights", "product_id", productID, "error", err)
		return nil
	}
	return out.Subjects
}

// FetchFeatures fetches feature sentiment records for a product.
// Best-effort: failures return nil.
func (s *ReviewScraper) FetchFeatures(ctx context.Context, productID string) []map[string]any {
	var out struct {
		Response struct {
			Features []map[string]any `json:"features"`
		} `json:"response"`
	}
	params := url.Values{"productId": {productID}, "language": {"en"}}
	if err := s.client.GetJSON(ctx, s.cfg.API.FeaturesURL, params, &out); err != nil {
		s.logger.Warn("could not fetch features", "product_id", productID, "error", err)
		return nil
	}
	return out.Response.Features
}

// ScrapeProduct fetches all review data for one product and returns the
// populated Product.
func (s *ReviewScraper) ScrapeProduct(ctx context.Context, productID, productName string) *models.Product {
	product := models.NewProduct(productID, productName)

	product.Reviews = s.FetchReviews(ctx, productID, 0)
	product.Highlights = s.FetchHighlights(ctx, productID)
	product.Features = s.FetchFeatures(ctx, productID)

	return product
}

// sleepCtx sleeps for d or until the context is done.
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
