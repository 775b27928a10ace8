// Package export renders printable spec sheets for public listings.
package export

import (
	"errors"
	"time"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// SpecRow is one label/value line in a spec table.
type SpecRow struct {
	Label string
	Value string
}

// SpecSheet is the data rendered into the spec sheet template.
type SpecSheet struct {
	ListingID   string
	Title       string
	Price       string
	PriceType   string
	Status      string
	Location    string
	Description string
	ImageURL    string
	Vehicle     []SpecRow
	History     []SpecRow
	Features    []string
	GeneratedAt time.Time
}

var (
	// ErrNotPublic indicates the listing is not visible on the storefront.
	ErrNotPublic = errors.New("listing is not public")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
