package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"carmarket/api/internal/listing"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2019 Honda Civic", "2019-honda-civic"},
		{"BMW 320d / M Sport!", "bmw-320d-m-sport"},
		{"  trailing  ", "trailing"},
		{"!!!", "listing"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := percentEncodeForDataURL(tt.input); got != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	if got := formatMoney(decimal.RequireFromString("1234567.5")); got != "$1,234,567.50" {
		t.Fatalf("formatMoney = %q", got)
	}
	if got := formatMoney(decimal.RequireFromString("950")); got != "$950.00" {
		t.Fatalf("formatMoney = %q", got)
	}
	if got := groupThousands("75000"); got != "75,000" {
		t.Fatalf("groupThousands = %q", got)
	}
	if got := humanize("semi_automatic"); got != "Semi automatic" {
		t.Fatalf("humanize = %q", got)
	}
	if got := humanize("suv"); got != "SUV" {
		t.Fatalf("humanize = %q", got)
	}
}

func sampleListing() (store.Listing, store.CarDetail, []store.CarImage) {
	owners := 2
	item := store.Listing{
		ID:          "lst-1",
		CarDetailID: "car-1",
		Title:       "2019 Honda Civic",
		Price:       decimal.RequireFromString("12500"),
		PriceType:   listing.PriceNegotiable,
		Status:      listing.StatusApproved,
		City:        "Austin",
		Country:     "US",
		IsActive:    true,
	}
	car := store.CarDetail{
		ID:             "car-1",
		Make:           "Honda",
		Model:          "Civic",
		Year:           2019,
		BodyType:       listing.BodySedan,
		FuelType:       listing.FuelPetrol,
		Transmission:   listing.TransmissionCVT,
		EngineSize:     decimal.NewNullDecimal(decimal.RequireFromString("2.0")),
		Mileage:        75000,
		NumberOfDoors:  4,
		NumberOfSeats:  5,
		Condition:      listing.ConditionVeryGood,
		PreviousOwners: &owners,
		Features:       []string{"Heated seats", "<script>"},
	}
	images := []store.CarImage{
		{URL: "https://cdn.test/side.jpg"},
		{URL: "https://cdn.test/front.jpg", IsPrimary: true},
	}
	return item, car, images
}

func TestRenderSpecSheetHTML(t *testing.T) {
	item, car, images := sampleListing()
	html, err := RenderSpecSheetHTML(BuildSpecSheet(item, car, images, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("RenderSpecSheetHTML() error = %v", err)
	}

	for _, want := range []string{
		"2019 Honda Civic",
		"$12,500.00",
		"Negotiable",
		"Austin, US",
		"75,000 km",
		"2.0 L",
		"CVT",
		"Very good",
		"https://cdn.test/front.jpg",
		"Heated seats",
		"May 1, 2026",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("spec sheet missing %q", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("feature text must be escaped")
	}
}

type fakeStore struct {
	item store.Listing
	car  store.CarDetail
	imgs []store.CarImage
}

func (f fakeStore) GetListing(context.Context, string) (store.Listing, error) { return f.item, nil }
func (f fakeStore) GetCarDetail(context.Context, string) (store.CarDetail, error) {
	return f.car, nil
}
func (f fakeStore) ListImages(context.Context, string) ([]store.CarImage, error) { return f.imgs, nil }

func TestSpecSheetRejectsNonPublicListings(t *testing.T) {
	item, car, images := sampleListing()
	item.Status = listing.StatusPending
	svc := NewService(fakeStore{item: item, car: car, imgs: images})
	svc.render = func(context.Context, string, string) (*Result, error) {
		t.Fatal("render should not run for a pending listing")
		return nil, nil
	}

	if _, err := svc.SpecSheet(context.Background(), item.ID); !errors.Is(err, ErrNotPublic) {
		t.Fatalf("expected ErrNotPublic, got %v", err)
	}
}

func TestSpecSheetRendersPublicListing(t *testing.T) {
	item, car, images := sampleListing()
	svc := NewService(fakeStore{item: item, car: car, imgs: images})
	var rendered string
	svc.render = func(_ context.Context, html, title string) (*Result, error) {
		rendered = html
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}

	result, err := svc.SpecSheet(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("SpecSheet() error = %v", err)
	}
	if result.Filename != "2019-honda-civic.pdf" || !strings.Contains(rendered, "Honda") {
		t.Fatalf("unexpected result %q / %q", result.Filename, rendered)
	}
}
