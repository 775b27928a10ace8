package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Opt is an optional field of a partial update. An unset Opt leaves the
// column alone; a set Opt with Valid=false clears it.
type Opt[T any] struct {
	Set   bool
	Valid bool
	V     T
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Valid: true, V: v}
}

func Null[T any]() Opt[T] {
	return Opt[T]{Set: true}
}

// IsZero lets encoding/json drop unset fields tagged omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.Set
}

// Value returns the value to store, nil when the field is cleared.
func (o Opt[T]) Value() any {
	if !o.Valid {
		return nil
	}
	return o.V
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.V)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Valid = false
		o.V = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.V); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// ListingPatch holds the seller-editable listing columns.
type ListingPatch struct {
	Title       Opt[string]          `json:"title,omitzero"`
	Description Opt[string]          `json:"description,omitzero"`
	Price       Opt[decimal.Decimal] `json:"price,omitzero"`
	PriceType   Opt[PriceType]       `json:"priceType,omitzero"`
	Location    Opt[string]          `json:"location,omitzero"`
	City        Opt[string]          `json:"city,omitzero"`
	State       Opt[string]          `json:"state,omitzero"`
	Country     Opt[string]          `json:"country,omitzero"`
	PostalCode  Opt[string]          `json:"postalCode,omitzero"`
	Latitude    Opt[float64]         `json:"latitude,omitzero"`
	Longitude   Opt[float64]         `json:"longitude,omitzero"`
	IsUrgent    Opt[bool]            `json:"isUrgent,omitzero"`
	ExpiresAt   Opt[time.Time]       `json:"expiresAt,omitzero"`
}

func (p ListingPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Price.Set && !p.PriceType.Set &&
		!p.Location.Set && !p.City.Set && !p.State.Set && !p.Country.Set &&
		!p.PostalCode.Set && !p.Latitude.Set && !p.Longitude.Set &&
		!p.IsUrgent.Set && !p.ExpiresAt.Set
}

// CarDetailPatch holds the seller-editable car detail columns.
type CarDetailPatch struct {
	Make               Opt[string]          `json:"make,omitzero"`
	Model              Opt[string]          `json:"model,omitzero"`
	Year               Opt[int]             `json:"year,omitzero"`
	BodyType           Opt[BodyType]        `json:"bodyType,omitzero"`
	FuelType           Opt[FuelType]        `json:"fuelType,omitzero"`
	Transmission       Opt[Transmission]    `json:"transmission,omitzero"`
	EngineSize         Opt[decimal.Decimal] `json:"engineSize,omitzero"`
	EnginePower        Opt[int]             `json:"enginePower,omitzero"`
	Mileage            Opt[int]             `json:"mileage,omitzero"`
	Color              Opt[string]          `json:"color,omitzero"`
	NumberOfDoors      Opt[int]             `json:"numberOfDoors,omitzero"`
	NumberOfSeats      Opt[int]             `json:"numberOfSeats,omitzero"`
	Condition          Opt[Condition]       `json:"condition,omitzero"`
	VIN                Opt[string]          `json:"vin,omitzero"`
	RegistrationNumber Opt[string]          `json:"registrationNumber,omitzero"`
	PreviousOwners     Opt[int]             `json:"previousOwners,omitzero"`
	HasAccidentHistory Opt[bool]            `json:"hasAccidentHistory,omitzero"`
	HasServiceHistory  Opt[bool]            `json:"hasServiceHistory,omitzero"`
	Description        Opt[string]          `json:"description,omitzero"`
	Features           Opt[[]string]        `json:"features,omitzero"`
}

func (p CarDetailPatch) Empty() bool {
	return !p.Make.Set && !p.Model.Set && !p.Year.Set && !p.BodyType.Set &&
		!p.FuelType.Set && !p.Transmission.Set && !p.EngineSize.Set &&
		!p.EnginePower.Set && !p.Mileage.Set && !p.Color.Set &&
		!p.NumberOfDoors.Set && !p.NumberOfSeats.Set && !p.Condition.Set &&
		!p.VIN.Set && !p.RegistrationNumber.Set && !p.PreviousOwners.Set &&
		!p.HasAccidentHistory.Set && !p.HasServiceHistory.Set &&
		!p.Description.Set && !p.Features.Set
}

// ImageInput is one gallery image as submitted by the seller. Position in the
// submitted slice decides sort order and the primary image.
type ImageInput struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	URL          string    `json:"url"`
	Type         ImageType `json:"type,omitempty"`
	FileSize     int64     `json:"fileSize,omitempty"`
	MimeType     string    `json:"mimeType,omitempty"`
	Alt          string    `json:"alt,omitempty"`
}

var ErrInvalidImage = errors.New("invalid image")

// Normalized fills defaults and validates the image.
func (i ImageInput) Normalized() (ImageInput, error) {
	i.Filename = strings.TrimSpace(i.Filename)
	i.URL = strings.TrimSpace(i.URL)
	if i.Filename == "" || i.URL == "" {
		return i, errors.Join(ErrInvalidImage, errors.New("filename and url are required"))
	}
	if i.Type == "" {
		i.Type = ImageExterior
	}
	if !i.Type.Valid() {
		return i, errors.Join(ErrInvalidImage, errors.New("unknown image type "+string(i.Type)))
	}
	if strings.TrimSpace(i.MimeType) == "" {
		i.MimeType = "image/jpeg"
	}
	if i.FileSize < 0 {
		return i, errors.Join(ErrInvalidImage, errors.New("fileSize must not be negative"))
	}
	return i, nil
}

// ChangeSet is the content of one pending change.
type ChangeSet struct {
	Listing   ListingPatch   `json:"listing"`
	CarDetail CarDetailPatch `json:"carDetail"`
	Images    []ImageInput   `json:"images"`
}

func (c ChangeSet) Empty() bool {
	return c.Listing.Empty() && c.CarDetail.Empty() && len(c.Images) == 0
}

// Snapshot records the pre-edit values of the fields a change touches.
type Snapshot struct {
	Listing   map[string]any `json:"listing"`
	CarDetail map[string]any `json:"carDetail"`
}
