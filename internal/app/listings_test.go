package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"carmarket/api/internal/listing"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

func validCreateInput() CreateListingInput {
	return CreateListingInput{
		Listing: map[string]any{
			"title":     "2021 Skoda Octavia Estate",
			"price":     "18995.499",
			"priceType": "Fixed",
			"city":      "York",
		},
		CarDetail: map[string]any{
			"make":         "Skoda",
			"model":        "Octavia",
			"year":         2021,
			"mileage":      31000,
			"bodyType":     "wagon",
			"fuelType":     "diesel",
			"transmission": "manual",
			"condition":    "very_good",
			"vin":          "tmbjj7ne1m0123456",
			"engineSize":   1.96,
		},
		Images: []listing.ImageInput{
			{Filename: "octavia-front.jpg", URL: "https://cdn.example.com/octavia-front.jpg"},
			{Filename: "octavia-dash.jpg", URL: "https://cdn.example.com/octavia-dash.jpg", Type: listing.ImageInterior},
		},
	}
}

func TestCreateEditApproveFlow(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("seller", "user")
	svc := newTestService(fs)
	ctx := context.Background()

	in := validCreateInput()
	in.CarDetail["mileage"] = 80000
	view, err := svc.CreateListing(ctx, "seller", in)
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	if view["status"] != "pending" {
		t.Fatalf("expected status pending, got %v", view["status"])
	}
	id, _ := view["id"].(string)
	carID := fs.listing(id).CarDetailID

	_, change, err := svc.ProposeUpdate(ctx, id, "seller", UpdateListingInput{CarDetail: map[string]any{"mileage": 75000}})
	if err != nil {
		t.Fatalf("ProposeUpdate() error = %v", err)
	}
	if change == nil || !change.Changes.CarDetail.Mileage.Set || change.Changes.CarDetail.Mileage.V != 75000 {
		t.Fatalf("expected mileage 75000 staged, got %+v", change)
	}
	if got := changedFieldNames(change.Changes); len(got) != 1 || got[0] != "carDetail.mileage" {
		t.Fatalf("expected only mileage changed, got %v", got)
	}
	if fs.car(carID).Mileage != 80000 {
		t.Fatalf("expected live mileage 80000 before approval, got %d", fs.car(carID).Mileage)
	}

	result, err := svc.ApproveListing(ctx, id, "admin", 0)
	if err != nil {
		t.Fatalf("ApproveListing() error = %v", err)
	}
	if result["pendingChangesApplied"] != 1 {
		t.Fatalf("expected 1 change applied, got %v", result["pendingChangesApplied"])
	}
	if fs.car(carID).Mileage != 75000 {
		t.Fatalf("expected mileage 75000, got %d", fs.car(carID).Mileage)
	}
	if fs.listing(id).Status != listing.StatusApproved {
		t.Fatalf("expected approved, got %s", fs.listing(id).Status)
	}
	if changes := fs.changesOf(id); len(changes) != 1 || !changes[0].IsApplied {
		t.Fatalf("expected the change applied, got %+v", changes)
	}
}

func TestCreateListingStoresPendingListing(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("seller", "user")
	svc := newTestService(fs)

	view, err := svc.CreateListing(context.Background(), "seller", validCreateInput())
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	if view["status"] != "pending" {
		t.Fatalf("expected status pending, got %v", view["status"])
	}
	if view["price"] != "18995.50" {
		t.Fatalf("expected price rounded to 18995.50, got %v", view["price"])
	}
	if view["priceType"] != "fixed" {
		t.Fatalf("expected priceType fixed, got %v", view["priceType"])
	}

	car, _ := view["carDetail"].(map[string]any)
	if car["vin"] != "TMBJJ7NE1M0123456" {
		t.Fatalf("expected upper-cased VIN, got %v", car["vin"])
	}
	if car["engineSize"] != "2.0" {
		t.Fatalf("expected engine size 2.0, got %v", car["engineSize"])
	}
	if car["numberOfDoors"] != 4 || car["numberOfSeats"] != 5 {
		t.Fatalf("expected default doors/seats, got %v/%v", car["numberOfDoors"], car["numberOfSeats"])
	}

	images, _ := view["images"].([]map[string]any)
	if len(images) != 2 || images[0]["isPrimary"] != true || images[1]["type"] != "interior" {
		t.Fatalf("unexpected images %v", images)
	}
	if msgs := fs.activityMessages(); len(msgs) != 1 || msgs[0] != "Listing created" {
		t.Fatalf("expected create audit entry, got %v", msgs)
	}
}

func TestCreateListingAsDraft(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	in := validCreateInput()
	in.Draft = true

	view, err := svc.CreateListing(context.Background(), "seller", in)
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	if view["status"] != "draft" {
		t.Fatalf("expected draft, got %v", view["status"])
	}
}

func TestCreateListingRequiresCoreFields(t *testing.T) {
	svc := newTestService(newFakeStore())
	in := validCreateInput()
	delete(in.Listing, "title")
	delete(in.CarDetail, "mileage")
	in.Listing["price"] = -5

	_, err := svc.CreateListing(context.Background(), "seller", in)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	details, _ := domainErr.Details.(map[string]any)
	fields, _ := details["fields"].([]string)
	want := map[string]bool{
		"listing.price: must not be negative": true,
		"listing.title: is required":          true,
		"carDetail.mileage: is required":      true,
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d field errors, got %v", len(want), fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Fatalf("unexpected field error %q", field)
		}
	}
}

func TestGetListingHidesUnpublishedListings(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("seller", "user")
	item := fs.addListing("seller", listing.StatusPending)
	svc := newTestService(fs)

	_, err := svc.GetListing(context.Background(), item.ID, Session{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for anonymous viewer, got %v", err)
	}

	view, err := svc.GetListing(context.Background(), item.ID, Session{UserID: "seller", Role: "user"})
	if err != nil {
		t.Fatalf("seller GetListing() error = %v", err)
	}
	if view["viewCount"] != 0 {
		t.Fatalf("expected seller views not counted, got %v", view["viewCount"])
	}

	view, err = svc.GetListing(context.Background(), item.ID, Session{UserID: "mod", Role: "moderator"})
	if err != nil {
		t.Fatalf("moderator GetListing() error = %v", err)
	}
	if view["viewCount"] != 1 {
		t.Fatalf("expected moderator view counted, got %v", view["viewCount"])
	}
	seller, _ := view["seller"].(map[string]any)
	if seller["firstName"] != "Seller" {
		t.Fatalf("expected seller summary, got %v", view["seller"])
	}
}

func TestListListingsShowsOnlyStorefrontListings(t *testing.T) {
	fs := newFakeStore()
	for _, status := range []listing.Status{
		listing.StatusApproved, listing.StatusApproved, listing.StatusSold,
		listing.StatusPending, listing.StatusDraft, listing.StatusInactive,
	} {
		fs.addListing("seller", status)
	}
	svc := newTestService(fs)

	result, err := svc.ListListings(context.Background(), ListingQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListListings() error = %v", err)
	}
	items, _ := result["listings"].([]map[string]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 listing on page 2, got %d", len(items))
	}
	page, _ := result["pagination"].(map[string]any)
	if page["total"] != 3 || page["totalPages"] != 2 || page["page"] != 2 {
		t.Fatalf("unexpected pagination %v", page)
	}
}

func TestGetPendingChangesNewestFirst(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("seller", "user")
	item := fs.addListing("seller", listing.StatusApproved)
	svc := newTestService(fs)
	first := proposeOrFail(t, svc, item.ID, UpdateListingInput{Listing: map[string]any{"price": 14000}})
	second := proposeOrFail(t, svc, item.ID, UpdateListingInput{Listing: map[string]any{"price": 13500}})

	if _, err := svc.GetPendingChanges(context.Background(), item.ID, Session{UserID: "other", Role: "user"}); err == nil {
		t.Fatalf("expected strangers to be refused")
	}

	result, err := svc.GetPendingChanges(context.Background(), item.ID, Session{UserID: "seller", Role: "user"})
	if err != nil {
		t.Fatalf("GetPendingChanges() error = %v", err)
	}
	changes, _ := result["pendingChanges"].([]map[string]any)
	if len(changes) != 2 || changes[0]["id"] != second.ID || changes[1]["id"] != first.ID {
		t.Fatalf("expected newest first, got %v", changes)
	}
	fields, _ := changes[0]["fields"].([]string)
	if len(fields) != 1 || fields[0] != "listing.price" {
		t.Fatalf("expected listing.price, got %v", fields)
	}
}

func TestReviewViewIncludesActivity(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("seller", "user")
	item := fs.addListing("seller", listing.StatusApproved)
	svc := newTestService(fs)
	proposeOrFail(t, svc, item.ID, UpdateListingInput{CarDetail: map[string]any{"previousOwners": 2}})

	result, err := svc.GetListingWithPendingChanges(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetListingWithPendingChanges() error = %v", err)
	}
	activity, _ := result["activity"].([]map[string]any)
	if len(activity) != 1 || activity[0]["category"] != store.CategoryListingAction {
		t.Fatalf("expected the submit entry, got %v", activity)
	}
	changes, _ := result["pendingChanges"].([]map[string]any)
	if len(changes) != 1 {
		t.Fatalf("expected one pending change, got %d", len(changes))
	}
}

func TestFieldParsers(t *testing.T) {
	price, err := parsePrice("1,000")
	if err == nil {
		t.Fatalf("expected thousands separators to be refused, got %s", price)
	}
	if price, err := parsePrice(12.345); err != nil || !price.Equal(decimal.RequireFromString("12.35")) {
		t.Fatalf("expected 12.35, got %s %v", price, err)
	}
	if _, err := parseIntRange(1, 10)(11); err == nil {
		t.Fatalf("expected out of range doors to fail")
	}
	if _, err := parseWholeNumber(2.5); err == nil {
		t.Fatalf("expected fractional number to fail")
	}
	if v, err := parseBool("true"); err != nil || !v {
		t.Fatalf("expected true, got %v %v", v, err)
	}
	if ts, err := parseTime("2026-12-31"); err != nil || ts.Year() != 2026 {
		t.Fatalf("expected date-only timestamp, got %v %v", ts, err)
	}
	if _, err := parseEnum(listing.FuelType.Valid)("steam"); err == nil {
		t.Fatalf("expected unknown fuel type to fail")
	}
	features, err := parseFeatures([]any{" Heated seats ", "", "Tow bar"})
	if err != nil || len(features) != 2 || features[0] != "Heated seats" {
		t.Fatalf("unexpected features %v %v", features, err)
	}
	if _, err := parseCoordinate(90)(91.5); err == nil {
		t.Fatalf("expected latitude over 90 to fail")
	}
}
