package scraper

import (
	"errors"
	"testing"

	"github.com/alejandrocano/ctscrape/internal/models"
)

func reviewCard(stars, title, author, age, body, recommend string) string {
	return `<div class="review-card">
		<span aria-label="` + stars + `">` + stars + `.</span>
		<h4>` + title + `</h4>
		<span>` + author + `</span>
		<span>` + age + `</span>
		<p>` + body + `</p>
		<span>` + recommend + `</span>
		<span>Helpful?</span>
		<span>Report</span>
	</div>`
}

const ratingWidget = `<div class="widget">
	<span aria-label="0 out of 5 stars">Select to rate this product. Your feedback is helpful
	and we recommend leaving a review for other shoppers to read before buying.</span>
</div>`

func productPage(cards ...string) string {
	page := `<html><body><section id="BVRRContainer">`
	for _, card := range cards {
		page += card
	}
	return page + ratingWidget + `</section></body></html>`
}

func TestExtractReviewsFromHTML(t *testing.T) {
	page := productPage(
		reviewCard("4 out of 5 stars", "Great winter tool", "JohnD", "5 months ago",
			"Works great on icy windshields and the handle is comfortable to hold even with gloves on.",
			"Yes, I recommend this product"),
		reviewCard("2 out of 5 stars", "Broke after a week", "SarahM", "2 months ago",
			"The plastic blade cracked on the first really cold morning and the foam grip slid right off.",
			"No, I do not recommend this product"),
	)

	reviews, err := ExtractReviewsFromHTML(page, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews (widget chrome filtered out), got %d", len(reviews))
	}

	first := reviews[0]
	if first.Rating != 4 {
		t.Errorf("rating = %d, want 4", first.Rating)
	}
	if first.Title != "Great winter tool" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Author != "JohnD" {
		t.Errorf("author = %q", first.Author)
	}
	if first.Date != "5 months ago" {
		t.Errorf("date = %q", first.Date)
	}
	if first.Text == "" {
		t.Error("expected body text")
	}
	if first.Source != models.SourceBrowser {
		t.Errorf("source = %q", first.Source)
	}
	if first.ReviewID != "selenium_review_0" {
		t.Errorf("review id = %q", first.ReviewID)
	}
	if first.Recommendation == nil || !*first.Recommendation {
		t.Error("expected positive recommendation")
	}

	second := reviews[1]
	if second.Rating != 2 {
		t.Errorf("rating = %d, want 2", second.Rating)
	}
	if second.Recommendation == nil || *second.Recommendation {
		t.Error("expected negative recommendation")
	}
}

func TestExtractReviewsDeduplicates(t *testing.T) {
	card := reviewCard("5 out of 5 stars", "Solid buy", "MikeT", "3 days ago",
		"Exactly what I needed for the cottage driveway, sturdy and the price was right for sure.",
		"Yes, I recommend this product")
	page := productPage(card, card, card)

	reviews, err := ExtractReviewsFromHTML(page, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected identical reviews collapsed to 1, got %d", len(reviews))
	}
}

func TestExtractReviewsNoContainer(t *testing.T) {
	_, err := ExtractReviewsFromHTML(`<html><body><p>product page without reviews</p></body></html>`, 10)
	if !errors.Is(err, models.ErrNoReviews) {
		t.Fatalf("expected ErrNoReviews, got %v", err)
	}
}

func TestExtractReviewsXPathContainerFallback(t *testing.T) {
	// A container class the CSS candidates miss but the XPath fallback finds.
	page := `<html><body><section class="bv-content-wrapper">` +
		reviewCard("3 out of 5 stars", "Does the job", "AnnaK", "1 months ago",
			"Decent scraper for the money although the brush side sheds bristles after heavy use outside.",
			"Yes, I recommend this product") +
		`</section></body></html>`

	reviews, err := ExtractReviewsFromHTML(page, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
}

func TestExtractReviewsMaxCap(t *testing.T) {
	page := productPage(
		reviewCard("4 out of 5 stars", "First one", "UserA", "2 months ago",
			"Long enough body text about the product quality and how it held up over the winter season here.",
			"Yes, I recommend this product"),
		reviewCard("5 out of 5 stars", "Second one", "UserB", "4 months ago",
			"Another long enough body describing a different experience with this product in cold weather.",
			"Yes, I recommend this product"),
	)

	reviews, err := ExtractReviewsFromHTML(page, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected cap at 1 review, got %d", len(reviews))
	}
}

func TestIsReviewText(t *testing.T) {
	long := "This product is rated 4 out of 5 stars by shoppers and many found it helpful during the winter months this year."
	if !isReviewText(long) {
		t.Error("expected genuine review text to pass")
	}
	if isReviewText("4 out of 5 stars helpful") {
		t.Error("short text must fail")
	}
	if isReviewText(long + " Select to rate this item.") {
		t.Error("rating-entry widget text must fail")
	}
}
