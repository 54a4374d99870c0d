package scraper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// ProductSearcher discovers products through the retailer's search API.
type ProductSearcher struct {
	client *Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewProductSearcher creates a ProductSearcher sharing the given client.
func NewProductSearcher(client *Client, cfg *config.Config, logger *slog.Logger) *ProductSearcher {
	return &ProductSearcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "product_searcher"),
	}
}

type searchProduct struct {
	Code           string          `json:"code"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Rating         *float64        `json:"rating"`
	RatingsCount   *int            `json:"ratingsCount"`
	Badges         []string        `json:"badges"`
	BreadcrumbList []string        `json:"breadcrumbList"`
	Brand          json.RawMessage `json:"brand"` // object with "label", or bare string
	Images         []struct {
		URL string `json:"url"`
	} `json:"images"`
}

type searchResponse struct {
	RedirectURL string          `json:"redirectUrl"`
	Products    []searchProduct `json:"products"`
	Pagination  struct {
		TotalResults int `json:"totalResults"`
	} `json:"pagination"`
}

// Search pages through the search API for a term ("*" matches everything),
// dropping duplicate product codes the upstream is known to return across
// pages. Pagination stops at the API-reported total, at maxProducts, or
// after the configured number of consecutive empty/duplicate-only pages.
func (s *ProductSearcher) Search(ctx context.Context, term string, maxProducts int) []models.ProductRef {
	if maxProducts <= 0 {
		maxProducts = s.cfg.Scrape.SearchPageRows
	}

	var all []models.ProductRef
	seen := make(map[string]struct{})
	page := 1
	emptyPages := 0

	s.logger.Info("searching products", "term", term, "max", maxProducts)

	for len(all) < maxProducts && emptyPages < s.cfg.Scrape.MaxEmptyPages {
		offset := len(all)

		params := url.Values{
			"q":           {term},
			"store":       {s.cfg.API.StoreID},
			"start":       {strconv.Itoa(offset)},
			"rows":        {strconv.Itoa(s.cfg.Scrape.SearchPageRows)},
			"lang":        {"en_CA"},
			"baseStoreId": {"CTR"},
			"apiversion":  {"5.5"},
			"displaycode": {"15041_3_0-en_ca"},
			"sort":        {"relevance desc, code asc"},
		}

		var resp searchResponse
		if err := s.client.GetJSON(ctx, s.cfg.API.SearchURL, params, &resp); err != nil {
			s.logger.Warn("search terminated early", "term", term, "page", page, "error", err)
			break
		}

		if len(resp.Products) == 0 {
			emptyPages++
			page++
			continue
		}

		newInPage := 0
		for _, p := range resp.Products {
			if p.Code == "" {
				continue
			}
			if _, dup := seen[p.Code]; dup {
				continue
			}
			seen[p.Code] = struct{}{}
			all = append(all, s.toProductRef(p))
			newInPage++

			if len(all) >= maxProducts {
				break
			}
		}

		s.logger.Debug("search page done", "term", term, "page", page,
			"new", newInPage, "total", len(all))

		if offset+s.cfg.Scrape.SearchPageRows >= resp.Pagination.TotalResults {
			break
		}
		// A page of nothing but duplicates counts against the give-up
		// budget: the offset only advances with new products, so such
		// pages would otherwise repeat indefinitely.
		if newInPage > 0 {
			emptyPages = 0
		} else {
			emptyPages++
		}

		page++
		sleepCtx(ctx, s.cfg.Scrape.APIDelay)
	}

	s.logger.Info("search complete", "term", term, "found", len(all))
	return all
}

// Discover sweeps the configured category terms, merging results and
// de-duplicating by product identifier across terms, capped at totalLimit.
func (s *ProductSearcher) Discover(ctx context.Context, totalLimit int) []models.ProductRef {
	terms := s.cfg.Scrape.SearchTerms
	if totalLimit <= 0 || len(terms) == 0 {
		return nil
	}

	perTerm := totalLimit / len(terms)
	if perTerm < 10 {
		perTerm = 10
	}

	s.logger.Info("discovering products", "terms", len(terms), "limit", totalLimit)

	var merged []models.ProductRef
	for i, term := range terms {
		if len(merged) >= totalLimit {
			break
		}
		s.logger.Info("discovery term", "index", i+1, "of", len(terms), "term", term)
		merged = append(merged, s.Search(ctx, term, perTerm)...)
		sleepCtx(ctx, 2*time.Second)
	}

	// Cross-term dedup with the global cap.
	unique := make([]models.ProductRef, 0, totalLimit)
	seen := make(map[string]struct{}, len(merged))
	for _, p := range merged {
		if _, dup := seen[p.ProductID]; dup {
			continue
		}
		seen[p.ProductID] = struct{}{}
		unique = append(unique, p)
		if len(unique) >= totalLimit {
			break
		}
	}

	s.logger.Info("discovery complete", "unique", len(unique))
	return unique
}

// FilterCriteria narrows search results. Zero values disable a criterion.
type FilterCriteria struct {
	MinRating  float64
	MinReviews int
	Categories []string
}

// Filter returns the products matching every enabled criterion.
func Filter(products []models.ProductRef, c FilterCriteria) []models.ProductRef {
	var out []models.ProductRef
	for _, p := range products {
		if c.MinRating > 0 && (p.Rating == nil || *p.Rating < c.MinRating) {
			continue
		}
		if c.MinReviews > 0 && (p.RatingsCount == nil || *p.RatingsCount < c.MinReviews) {
			continue
		}
		if len(c.Categories) > 0 && !containsFold(c.Categories, p.Category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ResolveProductURL finds a product's canonical page URL: the search API's
// redirect field when present, otherwise the exact code match among results.
func (s *ProductSearcher) ResolveProductURL(ctx context.Context, productID string) (string, error) {
	code := cleanProductCode(productID)

	params := url.Values{
		"q":           {code},
		"store":       {s.cfg.API.StoreID},
		"rows":        {"10"},
		"lang":        {"en_CA"},
		"baseStoreId": {"CTR"},
		"apiversion":  {"5.5"},
	}

	var resp searchResponse
	if err := s.client.GetJSON(ctx, s.cfg.API.SearchURL, params, &resp); err != nil {
		return "", err
	}

	if resp.RedirectURL != "" {
		return s.cfg.API.SiteURL + resp.RedirectURL, nil
	}
	for _, p := range resp.Products {
		if p.Code == code && p.URL != "" {
			return s.cfg.API.SiteURL + p.URL, nil
		}
	}
	return "", models.ErrNoProductURL
}

func (s *ProductSearcher) toProductRef(p searchProduct) models.ProductRef {
	ref := models.ProductRef{
		ProductID:    p.Code,
		Name:         p.Title,
		Category:     lastBreadcrumb(p.BreadcrumbList),
		Brand:        parseBrand(p.Brand),
		URL:          s.cfg.API.SiteURL + p.URL,
		Rating:       p.Rating,
		RatingsCount: p.RatingsCount,
		Badges:       p.Badges,
	}
	if len(p.Images) > 0 {
		ref.ImageURL = p.Images[0].URL
	}
	return ref
}

// parseBrand tolerates the brand field being an object or a bare string.
func parseBrand(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Label != "" {
		return obj.Label
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func lastBreadcrumb(breadcrumbs []string) string {
	if len(breadcrumbs) == 0 {
		return "Unknown"
	}
	return breadcrumbs[len(breadcrumbs)-1]
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
