package models

// Review sources. The "selenium" tag is part of the artifact schema shared
// with the document-store loader and predates this implementation.
const (
	SourceAPI     = "api"
	SourceBrowser = "selenium"
)

// Comment is a nested reply on a review.
type Comment struct {
	CommentText    string `json:"comment_text" bson:"comment_text"`
	Author         string `json:"author" bson:"author"`
	SubmissionTime string `json:"submission_time" bson:"submission_time"`
}

// Review is one product review. ReviewID is the source system's stable
// identifier and the only valid deduplication key: two reviews are the same
// entity iff their IDs match, regardless of author or content. Author is
// display-only and may be empty.
type Review struct {
	ReviewID         string    `json:"review_id"`
	Author           string    `json:"author"`
	Rating           int       `json:"rating"` // 1-5, 0 = unknown/unparsed
	Title            string    `json:"title"`
	Text             string    `json:"text"`
	Date             string    `json:"date"`
	Source           string    `json:"source"` // "api" or "selenium"
	VerifiedPurchase bool      `json:"verified_purchase"`
	Recommendation   *bool     `json:"recommendation"` // nil = unknown
	SubmissionTime   string    `json:"submission_time"`
	Comments         []Comment `json:"comments"`
}
