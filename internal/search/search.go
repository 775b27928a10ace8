package search

// Result is a single storefront hit.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Price    string `json:"price"`
	City     string `json:"city"`
	Status   string `json:"status"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Make     string
	FuelType string
	BodyType string
	City     string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ListingRecord is the data indexed for a public listing.
type ListingRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Price        string `json:"price"`
	Mileage      int    `json:"mileage"`
	FuelType     string `json:"fuelType"`
	BodyType     string `json:"bodyType"`
	Transmission string `json:"transmission"`
	City         string `json:"city"`
	Status       string `json:"status"`
	ImageURL     string `json:"imageUrl"`
	CreatedAt    int64  `json:"createdAt"`
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
