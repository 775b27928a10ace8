package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"carmarket/api/internal/export"
	"carmarket/api/internal/listing"
	"carmarket/api/internal/rbac"
	"carmarket/api/internal/search"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

type CreateListingInput struct {
	Listing   map[string]any       `json:"listing"`
	CarDetail map[string]any       `json:"carDetail"`
	Images    []listing.ImageInput `json:"images"`
	Draft     bool                 `json:"draft"`
}

// ListingQuery is a storefront page request. Page starts at 1.
type ListingQuery struct {
	Filter store.ListingFilter
	Page   int
	Limit  int
}

var requiredOnCreate = []string{
	"listing.title", "listing.price",
	"carDetail.make", "carDetail.model", "carDetail.year", "carDetail.mileage",
	"carDetail.bodyType", "carDetail.fuelType", "carDetail.transmission", "carDetail.condition",
}

// CreateListing stores a new listing for review, or as a draft.
func (s *Service) CreateListing(ctx context.Context, sellerID string, in CreateListingInput) (map[string]any, error) {
	var cs listing.ChangeSet
	present := map[string]bool{}
	var invalid []string
	collect := func(registry map[string]editableField, group string, values map[string]any) {
		for _, key := range sortedKeys(values) {
			field, ok := registry[key]
			if !ok {
				invalid = append(invalid, group+"."+key+": not editable")
				continue
			}
			value, err := field.parse(values[key])
			if err != nil {
				invalid = append(invalid, group+"."+key+": "+err.Error())
				present[group+"."+key] = true
				continue
			}
			if value == nil {
				continue
			}
			field.stage(&cs, value)
			present[group+"."+key] = true
		}
	}
	collect(listingFields, "listing", in.Listing)
	collect(carDetailFields, "carDetail", in.CarDetail)
	for _, key := range requiredOnCreate {
		if !present[key] {
			invalid = append(invalid, key+": is required")
		}
	}
	if len(invalid) > 0 {
		return nil, validationError("Invalid listing", map[string]any{"fields": invalid})
	}
	images, err := normalizeImages(in.Images)
	if err != nil {
		return nil, err
	}
	if err := s.verifyImages(ctx, images); err != nil {
		return nil, err
	}

	status := listing.StatusPending
	if in.Draft {
		status = listing.StatusDraft
	}
	item := newListingRow(sellerID, status, cs.Listing)
	car := newCarDetailRow(cs.CarDetail)

	var created store.Listing
	err = s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		carID, err := tx.InsertCarDetail(ctx, car)
		if err != nil {
			return err
		}
		item.CarDetailID = carID
		created, err = tx.InsertListing(ctx, item)
		if err != nil {
			return err
		}
		if len(images) > 0 {
			if _, err := tx.ReplaceImages(ctx, carID, images); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category:  store.CategoryListingAction,
			Message:   "Listing created",
			UserID:    sellerID,
			ListingID: created.ID,
			Metadata:  map[string]any{"listingTitle": created.Title, "status": string(created.Status)},
		})
	})
	return s.listingView(ctx, created.ID)
}

func newListingRow(sellerID string, status listing.Status, p listing.ListingPatch) store.Listing {
	item := store.Listing{
		SellerID:  sellerID,
		Status:    status,
		PriceType: listing.PriceNegotiable,
		IsActive:  true,
	}
	assign(&item.Title, p.Title)
	assign(&item.Description, p.Description)
	assign(&item.Price, p.Price)
	assign(&item.PriceType, p.PriceType)
	assign(&item.Location, p.Location)
	assign(&item.City, p.City)
	assign(&item.State, p.State)
	assign(&item.Country, p.Country)
	assign(&item.PostalCode, p.PostalCode)
	assignPtr(&item.Latitude, p.Latitude)
	assignPtr(&item.Longitude, p.Longitude)
	assign(&item.IsUrgent, p.IsUrgent)
	assignPtr(&item.ExpiresAt, p.ExpiresAt)
	return item
}

func newCarDetailRow(p listing.CarDetailPatch) store.CarDetail {
	car := store.CarDetail{NumberOfDoors: 4, NumberOfSeats: 5, Features: []string{}}
	assign(&car.Make, p.Make)
	assign(&car.Model, p.Model)
	assign(&car.Year, p.Year)
	assign(&car.BodyType, p.BodyType)
	assign(&car.FuelType, p.FuelType)
	assign(&car.Transmission, p.Transmission)
	if p.EngineSize.Valid {
		car.EngineSize = decimal.NewNullDecimal(p.EngineSize.V)
	}
	assignPtr(&car.EnginePower, p.EnginePower)
	assign(&car.Mileage, p.Mileage)
	assign(&car.Color, p.Color)
	assign(&car.NumberOfDoors, p.NumberOfDoors)
	assign(&car.NumberOfSeats, p.NumberOfSeats)
	assign(&car.Condition, p.Condition)
	assign(&car.VIN, p.VIN)
	assign(&car.RegistrationNumber, p.RegistrationNumber)
	assignPtr(&car.PreviousOwners, p.PreviousOwners)
	assign(&car.HasAccidentHistory, p.HasAccidentHistory)
	assign(&car.HasServiceHistory, p.HasServiceHistory)
	assign(&car.Description, p.Description)
	assign(&car.Features, p.Features)
	return car
}

func assign[T any](dst *T, o listing.Opt[T]) {
	if o.Valid {
		*dst = o.V
	}
}

func assignPtr[T any](dst **T, o listing.Opt[T]) {
	if o.Valid {
		v := o.V
		*dst = &v
	}
}

// GetListing returns the full listing. Listings the storefront does not show
// are only visible to their seller and to moderators.
func (s *Service) GetListing(ctx context.Context, listingID string, viewer Session) (map[string]any, error) {
	item, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	isSeller := viewer.UserID != "" && viewer.UserID == item.SellerID
	if !s.storefrontVisible(item) && !isSeller && !s.Can(viewer.Role, rbac.ActionModerate) {
		return nil, notFound("Listing not found")
	}
	if !isSeller {
		if err := s.store.IncrementViewCount(ctx, listingID); err != nil {
			log.Printf("listings: view count %s: %v", listingID, err)
		} else {
			item.ViewCount++
		}
	}
	view, err := s.buildView(ctx, item)
	if err != nil {
		return nil, err
	}
	if seller, err := s.store.GetUserByID(ctx, item.SellerID); err == nil {
		view["seller"] = map[string]any{
			"id":        seller.ID,
			"firstName": seller.FirstName,
			"lastName":  seller.LastName,
			"phone":     seller.Phone,
		}
	}
	return view, nil
}

func (s *Service) storefrontVisible(item store.Listing) bool {
	return item.Status.Public() && item.IsActive && !listing.IsExpired(item.ExpiresAt, s.now())
}

func (s *Service) ListListings(ctx context.Context, q ListingQuery) (map[string]any, error) {
	page, limit := pageParams(q.Page, q.Limit)
	filter := q.Filter
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	items, total, err := s.store.ListPublicListings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"listings":   summaryViews(items),
		"pagination": pagination(page, limit, total),
	}, nil
}

func (s *Service) ListMyListings(ctx context.Context, sellerID string) (map[string]any, error) {
	items, err := s.store.ListSellerListings(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"listings": summaryViews(items)}, nil
}

func (s *Service) ListPendingListings(ctx context.Context, page, limit int) (map[string]any, error) {
	page, limit = pageParams(page, limit)
	items, total, err := s.store.ListPendingListings(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"listings":   summaryViews(items),
		"pagination": pagination(page, limit, total),
	}, nil
}

// GetPendingChanges lists the unapplied changes of a listing, newest first.
func (s *Service) GetPendingChanges(ctx context.Context, listingID string, actor Session) (map[string]any, error) {
	item, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if item.SellerID != actor.UserID && !s.Can(actor.Role, rbac.ActionModerate) {
		return nil, forbidden("You can only view pending changes of your own listings")
	}
	changes, err := s.store.ListPendingChanges(ctx, listingID, true)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"listingId":      listingID,
		"pendingChanges": pendingChangeViews(changes),
		"count":          len(changes),
	}, nil
}

// GetListingWithPendingChanges is the moderator review view: the live listing,
// its unapplied changes and recent activity.
func (s *Service) GetListingWithPendingChanges(ctx context.Context, listingID string) (map[string]any, error) {
	view, err := s.listingView(ctx, listingID)
	if err != nil {
		return nil, err
	}
	changes, err := s.store.ListPendingChanges(ctx, listingID, true)
	if err != nil {
		return nil, err
	}
	activity, err := s.store.ListActivityLogs(ctx, listingID, 20)
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(activity))
	for _, entry := range activity {
		entries = append(entries, map[string]any{
			"id":        entry.ID,
			"level":     entry.Level,
			"category":  entry.Category,
			"message":   entry.Message,
			"userId":    entry.UserID,
			"metadata":  entry.Metadata,
			"createdAt": entry.CreatedAt,
		})
	}
	return map[string]any{
		"listing":        view,
		"pendingChanges": pendingChangeViews(changes),
		"activity":       entries,
	}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) ExportSpecSheet(ctx context.Context, listingID string) (*export.Result, error) {
	result, err := s.exporter.SpecSheet(ctx, listingID)
	switch {
	case errors.Is(err, export.ErrNotPublic):
		return nil, notFound("Listing not found")
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil)
	case err != nil:
		return nil, err
	}
	return result, nil
}

func (s *Service) listingView(ctx context.Context, listingID string) (map[string]any, error) {
	item, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, item)
}

func (s *Service) buildView(ctx context.Context, item store.Listing) (map[string]any, error) {
	car, err := s.store.GetCarDetail(ctx, item.CarDetailID)
	if err != nil {
		return nil, fmt.Errorf("get car detail: %w", err)
	}
	images, err := s.store.ListImages(ctx, item.CarDetailID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	pending, err := s.store.ListPendingChanges(ctx, item.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}

	view := listingFieldsView(item, s.now())
	view["carDetail"] = carDetailView(car)
	imageViews := make([]map[string]any, 0, len(images))
	for _, img := range images {
		imageViews = append(imageViews, map[string]any{
			"id":           img.ID,
			"filename":     img.Filename,
			"originalName": img.OriginalName,
			"url":          img.URL,
			"type":         string(img.Type),
			"sortOrder":    img.SortOrder,
			"isPrimary":    img.IsPrimary,
			"alt":          img.Alt,
		})
	}
	view["images"] = imageViews
	view["hasPendingChanges"] = len(pending) > 0
	view["pendingChangesCount"] = len(pending)
	return view, nil
}

func listingFieldsView(item store.Listing, now time.Time) map[string]any {
	return map[string]any{
		"id":              item.ID,
		"sellerId":        item.SellerID,
		"title":           item.Title,
		"description":     item.Description,
		"price":           item.Price.StringFixed(2),
		"priceType":       string(item.PriceType),
		"status":          string(item.Status),
		"location":        item.Location,
		"city":            item.City,
		"state":           item.State,
		"country":         item.Country,
		"postalCode":      item.PostalCode,
		"latitude":        item.Latitude,
		"longitude":       item.Longitude,
		"viewCount":       item.ViewCount,
		"favoriteCount":   item.FavoriteCount,
		"inquiryCount":    item.InquiryCount,
		"isActive":        item.IsActive,
		"isFeatured":      item.IsFeatured,
		"isUrgent":        item.IsUrgent,
		"isPending":       item.Status.IsPending(),
		"isApproved":      item.Status.IsApproved(),
		"isSold":          item.Status.IsSold(),
		"isExpired":       listing.IsExpired(item.ExpiresAt, now),
		"expiresAt":       item.ExpiresAt,
		"approvedAt":      item.ApprovedAt,
		"rejectedAt":      item.RejectedAt,
		"rejectionReason": item.RejectionReason,
		"soldAt":          item.SoldAt,
		"version":         item.Version,
		"createdAt":       item.CreatedAt,
		"updatedAt":       item.UpdatedAt,
	}
}

func carDetailView(car store.CarDetail) map[string]any {
	var engineSize any
	if car.EngineSize.Valid {
		engineSize = car.EngineSize.Decimal.StringFixed(1)
	}
	return map[string]any{
		"id":                 car.ID,
		"make":               car.Make,
		"model":              car.Model,
		"year":               car.Year,
		"bodyType":           string(car.BodyType),
		"fuelType":           string(car.FuelType),
		"transmission":       string(car.Transmission),
		"engineSize":         engineSize,
		"enginePower":        car.EnginePower,
		"mileage":            car.Mileage,
		"color":              car.Color,
		"numberOfDoors":      car.NumberOfDoors,
		"numberOfSeats":      car.NumberOfSeats,
		"condition":          string(car.Condition),
		"vin":                car.VIN,
		"registrationNumber": car.RegistrationNumber,
		"previousOwners":     car.PreviousOwners,
		"hasAccidentHistory": car.HasAccidentHistory,
		"hasServiceHistory":  car.HasServiceHistory,
		"description":        car.Description,
		"features":           nonNilStrings(car.Features),
	}
}

func summaryViews(items []store.ListingSummary) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":                item.ID,
			"title":             item.Title,
			"price":             item.Price.StringFixed(2),
			"priceType":         string(item.PriceType),
			"status":            string(item.Status),
			"city":              item.City,
			"isFeatured":        item.IsFeatured,
			"isUrgent":          item.IsUrgent,
			"viewCount":         item.ViewCount,
			"make":              item.Car.Make,
			"model":             item.Car.Model,
			"year":              item.Car.Year,
			"mileage":           item.Car.Mileage,
			"fuelType":          string(item.Car.FuelType),
			"transmission":      string(item.Car.Transmission),
			"imageUrl":          item.PrimaryImageURL,
			"hasPendingChanges": item.PendingChanges > 0,
			"version":           item.Version,
			"createdAt":         item.CreatedAt,
		})
	}
	return out
}

func pendingChangeViews(changes []store.PendingChange) []map[string]any {
	out := make([]map[string]any, 0, len(changes))
	for _, change := range changes {
		out = append(out, map[string]any{
			"id":              change.ID,
			"changedByUserId": change.ChangedByUserID,
			"changes":         change.Changes,
			"originalValues":  change.OriginalValues,
			"fields":          changedFieldNames(change.Changes),
			"baseVersion":     change.BaseVersion,
			"isApplied":       change.IsApplied,
			"createdAt":       change.CreatedAt,
		})
	}
	return out
}

func pageParams(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func pagination(page, limit, total int) map[string]any {
	return map[string]any{
		"page":       page,
		"limit":      limit,
		"total":      total,
		"totalPages": (total + limit - 1) / limit,
	}
}

// setFields lists the fields a patch sets, keyed by wire name.
func setFields(patch any) map[string]any {
	raw, err := json.Marshal(patch)
	if err != nil {
		return map[string]any{}
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]any{}
	}
	return fields
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
