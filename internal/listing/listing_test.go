package listing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from  Status
		to    Status
		allow bool
	}{
		{from: StatusDraft, to: StatusPending, allow: true},
		{from: StatusPending, to: StatusApproved, allow: true},
		{from: StatusPending, to: StatusRejected, allow: true},
		{from: StatusApproved, to: StatusPending, allow: true},
		{from: StatusRejected, to: StatusPending, allow: true},
		{from: StatusApproved, to: StatusSold, allow: true},
		{from: StatusSold, to: StatusInactive, allow: true},
		{from: StatusDraft, to: StatusInactive, allow: true},
		{from: StatusDraft, to: StatusApproved, allow: false},
		{from: StatusRejected, to: StatusApproved, allow: false},
		{from: StatusApproved, to: StatusApproved, allow: false},
		{from: StatusPending, to: StatusSold, allow: false},
		{from: StatusSold, to: StatusPending, allow: false},
		{from: StatusInactive, to: StatusInactive, allow: false},
		{from: StatusInactive, to: StatusPending, allow: false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.allow {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.allow)
			}
		})
	}
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	got, err := Transition(StatusDraft, StatusApproved)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got != StatusDraft {
		t.Fatalf("expected status to stay draft, got %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("  Approved ")
	if err != nil || got != StatusApproved {
		t.Fatalf("ParseStatus() = %q, %v", got, err)
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestDerivedPredicates(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !IsExpired(&past, now) {
		t.Fatal("expected listing past expiresAt to be expired")
	}
	if IsExpired(&future, now) || IsExpired(nil, now) {
		t.Fatal("expected listing without past expiresAt to be live")
	}
	if !StatusPending.IsPending() || StatusPending.IsApproved() {
		t.Fatal("unexpected pending predicates")
	}
	if !StatusSold.Public() || StatusPending.Public() {
		t.Fatal("unexpected public predicates")
	}
	if StatusSold.Editable() || !StatusRejected.Editable() {
		t.Fatal("unexpected editable predicates")
	}
}

func TestChangeSetJSONOmitsUnsetFields(t *testing.T) {
	set := ChangeSet{
		Listing:   ListingPatch{Price: Some(decimal.RequireFromString("12500")), Description: Null[string]()},
		CarDetail: CarDetailPatch{Mileage: Some(75000)},
		Images:    []ImageInput{},
	}

	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"listing":{"description":null,"price":"12500"},"carDetail":{"mileage":75000},"images":[]}`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", raw, want)
	}

	var decoded ChangeSet
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Listing.Description.Set || decoded.Listing.Description.Valid {
		t.Fatalf("expected description to decode as cleared, got %+v", decoded.Listing.Description)
	}
	if !decoded.Listing.Price.Valid || !decoded.Listing.Price.V.Equal(decimal.RequireFromString("12500")) {
		t.Fatalf("unexpected price %+v", decoded.Listing.Price)
	}
	if decoded.Listing.Title.Set {
		t.Fatal("expected title to stay unset")
	}
	if decoded.CarDetail.Mileage.V != 75000 || decoded.CarDetail.Make.Set {
		t.Fatalf("unexpected car detail patch %+v", decoded.CarDetail)
	}
}

func TestImageInputNormalized(t *testing.T) {
	img, err := ImageInput{Filename: " a.jpg ", URL: "https://cdn/a.jpg"}.Normalized()
	if err != nil {
		t.Fatalf("Normalized() error = %v", err)
	}
	if img.Type != ImageExterior || img.MimeType != "image/jpeg" || img.Filename != "a.jpg" {
		t.Fatalf("unexpected defaults: %+v", img)
	}
	if _, err := (ImageInput{Filename: "a.jpg", URL: "u", Type: "roof"}).Normalized(); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}
