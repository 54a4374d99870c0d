package models

// Status is the terminal state of a per-product workflow.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoReviews Status = "no_reviews"
	StatusNoData    Status = "no_data"
	StatusError     Status = "error"
)

// Result is the outcome record for one product in a run. Consumers switch on
// Status instead of probing for key presence. Batch workflows return results
// in completion order, not input order.
type Result struct {
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	Status         Status   `json:"status"`
	ReviewsSource  string   `json:"reviews_source,omitempty"` // "api" or "selenium"
	ReviewsCount   int      `json:"reviews_count"`
	PriceAvailable bool     `json:"price_available"`
	FilesSaved     []string `json:"files_saved,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Summary aggregates the results of one batch or discovery run.
type Summary struct {
	Timestamp     int64    `json:"timestamp"`
	OperationType string   `json:"operation_type"`
	TotalProducts int      `json:"total_products"`
	Successful    int      `json:"successful"`
	Failed        int      `json:"failed"`
	NoData        int      `json:"no_data"`
	Results       []Result `json:"results"`
}

// Summarize builds the aggregate counts for a result set.
func Summarize(operationType string, timestamp int64, results []Result) Summary {
	s := Summary{
		Timestamp:     timestamp,
		OperationType: operationType,
		TotalProducts: len(results),
		Results:       results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Successful++
		case StatusError:
			s.Failed++
		case StatusNoReviews, StatusNoData:
			s.NoData++
		}
	}
	return s
}
