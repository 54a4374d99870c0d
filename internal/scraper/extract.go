package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/alejandrocano/ctscrape/internal/models"
)

// Selector candidates for the reviews container, tried in order. The review
// widget markup varies across product pages; the first match wins.
var containerSelectors = []string{
	"#BVRRContainer",
	".bv-content-container",
	"[data-bv-show='reviews']",
	".reviews-section",
}

// XPath fallbacks for pages where the CSS candidates miss.
var containerXPaths = []string{
	`//*[@id="BVRRContainer"]`,
	`//*[contains(@class, "bv-content")]`,
	`//*[@data-bv-show="reviews"]`,
}

// Selector candidates for individual review elements, tried in order.
var reviewSelectors = []string{
	"div:has([aria-label*='stars'])",
	".bv-rnr__sc-1jy9jb6-0",
	".bv-content-review",
	"[data-bv-type='review']",
}

// ExtractReviewsFromHTML pulls reviews out of a rendered product page.
// Returns ErrNoReviews when no reviews container can be located. Extracted
// reviews are de-duplicated by (author, title, first 100 chars of text) —
// a weaker identity than the API's review ID, because the markup carries no
// stable identifier.
func ExtractReviewsFromHTML(pageHTML string, maxReviews int) ([]models.Review, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	if !hasReviewsContainer(doc, pageHTML) {
		return nil, models.ErrNoReviews
	}

	elements := findReviewElements(doc)
	if maxReviews > 0 && len(elements) > maxReviews {
		elements = elements[:maxReviews]
	}

	var extracted []models.Review
	for i, text := range elements {
		if r := extractReview(text, i); r != nil {
			extracted = append(extracted, *r)
		}
	}

	return dedupeExtracted(extracted), nil
}

// hasReviewsContainer tries the CSS candidates first, then the XPath
// fallbacks over the same tree.
func hasReviewsContainer(doc *goquery.Document, pageHTML string) bool {
	for _, sel := range containerSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	root, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return false
	}
	for _, xp := range containerXPaths {
		if n, err := htmlquery.Query(root, xp); err == nil && n != nil {
			return true
		}
	}
	return false
}

// findReviewElements enumerates candidate elements by selector and keeps
// those whose text passes the review-content heuristic. The heuristic
// filters UI chrome (rating widgets, prompts) that superficially matches
// a selector.
func findReviewElements(doc *goquery.Document) []string {
	for _, sel := range reviewSelectors {
		var valid []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := elementText(s)
			if isReviewText(text) {
				valid = append(valid, text)
			}
		})
		if len(valid) > 0 {
			return valid
		}
	}
	return nil
}

// isReviewText decides whether element text is a genuine review: it must
// mention a star rating and helpfulness/recommendation, and must not be the
// rating-entry widget.
func isReviewText(text string) bool {
	if len(text) <= 100 {
		return false
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "out of") || !strings.Contains(lower, "stars") {
		return false
	}
	if !strings.Contains(lower, "helpful") && !strings.Contains(lower, "recommend") {
		return false
	}
	if strings.Contains(lower, "select to rate") {
		return false
	}
	return true
}

// elementText renders an element's text the way a browser reports it: one
// line per text node. The field regexes below depend on those line breaks.
func elementText(s *goquery.Selection) string {
	var lines []string
	for _, node := range s.Nodes {
		collectText(node, &lines)
	}
	return strings.Join(lines, "\n")
}

func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

var (
	ratingRe = regexp.MustCompile(`(?i)(\d+)\s*out of\s*(\d+)\s*stars?`)
	dateRe   = regexp.MustCompile(`(?i)(\d+\s*(?:months?|years?|days?)\s*ago|a\s*(?:month|year|day)\s*ago)`)

	// Author patterns, most specific first. Each anchors the candidate name
	// against surrounding badge or date text to avoid matching review prose.
	authorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:stars?\.?\s*\n.*?\n)([A-Za-z][A-Za-z\s]{1,25})\s*(?:\n.*?(?:EMPLOYEE|VERIFIED|INCENTIVIZED|months?|years?|days?))`),
		regexp.MustCompile(`\n([A-Za-z][A-Za-z\s]{1,25})\s*\n.*?(?:VERIFIED PURCHASER|EMPLOYEE REVIEW)`),
		regexp.MustCompile(`\n([A-Za-z][A-Za-z\s]{1,25})\s*(?:VERIFIED|EMPLOYEE|INCENTIVIZED)`),
		regexp.MustCompile(`\n([A-Za-z][A-Za-z\s]{1,25})\s*\d+\s*(?:months?|years?|days?)\s*ago`),
	}

	// Known false positives the author patterns keep catching.
	excludedAuthors = []string{
		"Employee Review", "Verified Purchaser", "Incentivized Review", "Ice scraper",
	}

	// Body-text patterns anchored on the phrases that bound the review body.
	bodyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?si)(?:months?|years?|days?)\s*ago\s*\n(.*?)(?:Yes, I recommend|Helpful\?|Report)`),
		regexp.MustCompile(`(?si)\n([^{}\n]{50,500})\s*(?:Yes, I recommend|Helpful\?|Report)`),
	}

	// Lines containing these never hold the review body.
	uiPhrases = []string{"stars", "helpful", "recommend", "employee review"}
)

// extractReview parses one review element's text through the ordered
// extraction strategies. A field that cannot be parsed stays at its zero
// value; the review is kept only if at least one of text, title, or rating
// is non-trivial.
func extractReview(fullText string, index int) *models.Review {
	rating := 0
	ratingMatch := ratingRe.FindStringSubmatchIndex(fullText)
	if ratingMatch != nil {
		fmt.Sscanf(fullText[ratingMatch[2]:ratingMatch[3]], "%d", &rating)
	}

	lines := strings.Split(fullText, "\n")

	// Title: first non-empty line after the one holding the rating.
	title := ""
	if ratingMatch != nil {
		ratingLine := fullText[ratingMatch[0]:ratingMatch[1]]
		for i, line := range lines {
			if strings.Contains(line, ratingLine) && i+1 < len(lines) {
				candidate := strings.TrimSpace(lines[i+1])
				if candidate != "" && len(candidate) < 200 {
					title = candidate
				}
				break
			}
		}
	}

	author := ""
	for _, pattern := range authorPatterns {
		m := pattern.FindStringSubmatch(fullText)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if candidate != "" && len(candidate) > 1 && len(candidate) < 50 && !isExcludedAuthor(candidate) {
			author = candidate
			break
		}
	}

	date := ""
	if m := dateRe.FindStringSubmatch(fullText); m != nil {
		date = m[1]
	}

	verified := strings.Contains(fullText, "Verified Purchaser")

	var recommendation *bool
	if strings.Contains(fullText, "Yes, I recommend this product") {
		yes := true
		recommendation = &yes
	} else if strings.Contains(fullText, "No, I do not recommend this product") {
		no := false
		recommendation = &no
	}

	text := extractBody(fullText, title)

	if text == "" && title == "" && rating == 0 {
		return nil
	}

	return &models.Review{
		// Positional ids are unstable across runs; the markup offers no
		// stable identifier to do better with.
		ReviewID:         fmt.Sprintf("selenium_review_%d", index),
		Author:           author,
		Rating:           rating,
		Title:            title,
		Text:             text,
		Date:             date,
		Source:           models.SourceBrowser,
		VerifiedPurchase: verified,
		Recommendation:   recommendation,
	}
}

// extractBody runs the ordered body patterns, then a title-anchored pattern,
// then falls back to the first long line that is not UI chrome.
func extractBody(fullText, title string) string {
	patterns := bodyPatterns
	if title != "" {
		anchored := regexp.MustCompile(`(?si)(?:` + regexp.QuoteMeta(title) + `)\s*\n.*?\n(.*?)(?:Yes, I recommend|Helpful\?)`)
		patterns = append([]*regexp.Regexp{bodyPatterns[0], anchored}, bodyPatterns[1:]...)
	}

	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(fullText)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		candidate = regexp.MustCompile(`\s+`).ReplaceAllString(candidate, " ")
		if len(candidate) > 10 {
			return candidate
		}
	}

	for _, line := range strings.Split(fullText, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 30 {
			continue
		}
		if containsUIPhrase(line) {
			continue
		}
		return line
	}
	return ""
}

func containsUIPhrase(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range uiPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isExcludedAuthor(candidate string) bool {
	for _, excluded := range excludedAuthors {
		if candidate == excluded {
			return true
		}
	}
	return false
}

// dedupeExtracted drops repeated reviews by composite key. Positional ids
// make identical content appear under different ids, so identity here is
// content-based.
func dedupeExtracted(reviews []models.Review) []models.Review {
	seen := make(map[string]struct{}, len(reviews))
	var unique []models.Review
	for _, r := range reviews {
		text := r.Text
		if len(text) > 100 {
			text = text[:100]
		}
		key := r.Author + ":" + r.Title + ":" + text
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
