package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carmarket/api/internal/listing"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetListing(ctx context.Context, listingID string) (store.Listing, error)
	GetCarDetail(ctx context.Context, carDetailID string) (store.CarDetail, error)
	ListImages(ctx context.Context, carDetailID string) ([]store.CarImage, error)
}

type Service struct {
	store  DataStore
	render func(ctx context.Context, html, title string) (*Result, error)
	now    func() time.Time
}

func NewService(store DataStore) *Service {
	return &Service{store: store, render: renderPDF, now: time.Now}
}

// SpecSheet renders a PDF for a listing the storefront currently shows.
func (s *Service) SpecSheet(ctx context.Context, listingID string) (*Result, error) {
	item, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	now := s.now()
	if !item.Status.Public() || !item.IsActive || listing.IsExpired(item.ExpiresAt, now) {
		return nil, ErrNotPublic
	}
	car, err := s.store.GetCarDetail(ctx, item.CarDetailID)
	if err != nil {
		return nil, fmt.Errorf("get car detail: %w", err)
	}
	images, err := s.store.ListImages(ctx, item.CarDetailID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	html, err := RenderSpecSheetHTML(BuildSpecSheet(item, car, images, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return s.render(ctx, html, item.Title)
}

func BuildSpecSheet(item store.Listing, car store.CarDetail, images []store.CarImage, now time.Time) SpecSheet {
	sheet := SpecSheet{
		ListingID:   item.ID,
		Title:       item.Title,
		Price:       formatMoney(item.Price),
		PriceType:   humanize(string(item.PriceType)),
		Status:      string(item.Status),
		Location:    joinNonEmpty(", ", item.City, item.State, item.Country),
		Description: firstNonBlank(item.Description, car.Description),
		Features:    car.Features,
		GeneratedAt: now,
	}
	for _, img := range images {
		if img.IsPrimary {
			sheet.ImageURL = img.URL
			break
		}
	}

	add := func(rows *[]SpecRow, label, value string) {
		if strings.TrimSpace(value) != "" {
			*rows = append(*rows, SpecRow{Label: label, Value: value})
		}
	}
	add(&sheet.Vehicle, "Make", car.Make)
	add(&sheet.Vehicle, "Model", car.Model)
	add(&sheet.Vehicle, "Year", strconv.Itoa(car.Year))
	add(&sheet.Vehicle, "Body type", humanize(string(car.BodyType)))
	add(&sheet.Vehicle, "Fuel", humanize(string(car.FuelType)))
	add(&sheet.Vehicle, "Transmission", humanize(string(car.Transmission)))
	add(&sheet.Vehicle, "Engine", engineLabel(car))
	add(&sheet.Vehicle, "Mileage", groupThousands(strconv.Itoa(car.Mileage))+" km")
	add(&sheet.Vehicle, "Color", car.Color)
	add(&sheet.Vehicle, "Doors", strconv.Itoa(car.NumberOfDoors))
	add(&sheet.Vehicle, "Seats", strconv.Itoa(car.NumberOfSeats))
	add(&sheet.Vehicle, "Condition", humanize(string(car.Condition)))
	add(&sheet.Vehicle, "VIN", car.VIN)

	if car.PreviousOwners != nil {
		add(&sheet.History, "Previous owners", strconv.Itoa(*car.PreviousOwners))
	}
	add(&sheet.History, "Accident history", yesNo(car.HasAccidentHistory))
	add(&sheet.History, "Service history", yesNo(car.HasServiceHistory))
	add(&sheet.History, "Registration", car.RegistrationNumber)
	return sheet
}

func engineLabel(car store.CarDetail) string {
	var parts []string
	if car.EngineSize.Valid {
		parts = append(parts, car.EngineSize.Decimal.StringFixed(1)+" L")
	}
	if car.EnginePower != nil {
		parts = append(parts, strconv.Itoa(*car.EnginePower)+" hp")
	}
	return strings.Join(parts, ", ")
}

func formatMoney(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + "$" + groupThousands(whole) + "." + cents
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var acronyms = map[string]bool{"suv": true, "cvt": true, "lpg": true, "cng": true}

// humanize turns an enum value like semi_automatic into "Semi automatic".
func humanize(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return ""
	}
	if acronyms[value] {
		return strings.ToUpper(value)
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
