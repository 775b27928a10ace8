package store

import (
	"strings"
	"time"

	"carmarket/api/internal/listing"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	FirstName             string
	LastName              string
	Phone                 string
	Role                  string
	IsActive              bool
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type Listing struct {
	ID              string
	SellerID        string
	CarDetailID     string
	Title           string
	Description     string
	Price           decimal.Decimal
	PriceType       listing.PriceType
	Status          listing.Status
	Location        string
	City            string
	State           string
	Country         string
	PostalCode      string
	Latitude        *float64
	Longitude       *float64
	ViewCount       int
	FavoriteCount   int
	InquiryCount    int
	IsActive        bool
	IsFeatured      bool
	IsUrgent        bool
	ExpiresAt       *time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason string
	SoldAt          *time.Time
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CarDetail struct {
	ID                 string
	Make               string
	Model              string
	Year               int
	BodyType           listing.BodyType
	FuelType           listing.FuelType
	Transmission       listing.Transmission
	EngineSize         decimal.NullDecimal
	EnginePower        *int
	Mileage            int
	Color              string
	NumberOfDoors      int
	NumberOfSeats      int
	Condition          listing.Condition
	VIN                string
	RegistrationNumber string
	PreviousOwners     *int
	HasAccidentHistory bool
	HasServiceHistory  bool
	Description        string
	Features           []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CarImage struct {
	ID           string
	CarDetailID  string
	Filename     string
	OriginalName string
	URL          string
	Type         listing.ImageType
	SortOrder    int
	IsPrimary    bool
	FileSize     int64
	MimeType     string
	Alt          string
	CreatedAt    time.Time
}

// PendingChange is a staged seller edit awaiting moderation. Rows are never
// deleted; IsApplied flips once.
type PendingChange struct {
	ID              string
	ListingID       string
	ChangedByUserID string
	Changes         listing.ChangeSet
	OriginalValues  listing.Snapshot
	BaseVersion     int
	IsApplied       bool
	AppliedAt       *time.Time
	AppliedByUserID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusChange moves a listing to a new status. Moderation timestamps are
// only written the first time the matching status is reached.
type StatusChange struct {
	ListingID       string
	Status          listing.Status
	At              time.Time
	RejectionReason *string
	IsActive        *bool
}

type Transaction struct {
	ID                string
	TransactionNumber string
	ListingID         string
	BuyerID           string
	SellerID          string
	Amount            decimal.Decimal
	PlatformFee       decimal.Decimal
	Status            string
	PaymentMethod     string
	Notes             string
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"

	CategoryUserAction    = "user_action"
	CategoryListingAction = "listing_action"
	CategoryAdminAction   = "admin_action"
	CategorySystemEvent   = "system_event"
	CategoryAuth          = "authentication"
	CategoryPayment       = "payment"
)

type ActivityLog struct {
	ID           string
	Level        string
	Category     string
	Message      string
	Description  string
	Metadata     map[string]any
	IPAddress    string
	UserAgent    string
	UserID       string
	TargetUserID string
	ListingID    string
	CreatedAt    time.Time
}

// ListingFilter drives the storefront query.
type ListingFilter struct {
	Make         string
	Model        string
	City         string
	FuelType     string
	Transmission string
	BodyType     string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	MinYear      int
	MaxYear      int
	Sort         string
	Limit        int
	Offset       int
}

type DashboardCounts struct {
	TotalUsers        int
	TotalListings     int
	PendingListings   int
	TotalTransactions int
	ByStatus          map[listing.Status]int
}

// ListingSummary is a listing joined with its vehicle and primary image, as
// shown in list views.
type ListingSummary struct {
	Listing
	Car             CarDetail
	PrimaryImageURL string
	PendingChanges  int
}
