package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"carmarket/api/internal/listing"
)

// ListingTx is the set of writes that run inside one listing transaction.
// LockListing must be called first so concurrent moderation of the same
// listing serializes on the row lock.
type ListingTx interface {
	LockListing(ctx context.Context, listingID string) (Listing, error)
	GetCarDetail(ctx context.Context, carDetailID string) (CarDetail, error)
	ListImages(ctx context.Context, carDetailID string) ([]CarImage, error)
	InsertCarDetail(ctx context.Context, detail CarDetail) (string, error)
	InsertListing(ctx context.Context, item Listing) (Listing, error)
	InsertPendingChange(ctx context.Context, change PendingChange) (PendingChange, error)
	ListUnappliedChanges(ctx context.Context, listingID string) ([]PendingChange, error)
	ApplyListingPatch(ctx context.Context, listingID string, patch listing.ListingPatch) error
	ApplyCarDetailPatch(ctx context.Context, carDetailID string, patch listing.CarDetailPatch) error
	ReplaceImages(ctx context.Context, carDetailID string, images []listing.ImageInput) ([]CarImage, error)
	MarkChangeApplied(ctx context.Context, changeID, adminID string, at time.Time) error
	SetListingStatus(ctx context.Context, change StatusChange) (Listing, error)
	BumpListingVersion(ctx context.Context, listingID string) (int, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	DeleteCarDetail(ctx context.Context, carDetailID string) error
}

// WithListingTx runs fn in a transaction and commits when fn returns nil.
func (s *PostgresStore) WithListingTx(ctx context.Context, fn func(ListingTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin listing tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&pgListingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit listing tx: %w", err)
	}
	committed = true
	return nil
}

type pgListingTx struct {
	tx *sql.Tx
}

func (t *pgListingTx) LockListing(ctx context.Context, listingID string) (Listing, error) {
	return getListing(ctx, t.tx, listingID, true)
}

func (t *pgListingTx) GetCarDetail(ctx context.Context, carDetailID string) (CarDetail, error) {
	return getCarDetail(ctx, t.tx, carDetailID)
}

func (t *pgListingTx) ListImages(ctx context.Context, carDetailID string) ([]CarImage, error) {
	return listImages(ctx, t.tx, carDetailID)
}

func (t *pgListingTx) InsertCarDetail(ctx context.Context, d CarDetail) (string, error) {
	features, err := json.Marshal(nonNilFeatures(d.Features))
	if err != nil {
		return "", fmt.Errorf("encode features: %w", err)
	}
	var id string
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO car_details (
			make, model, year, body_type, fuel_type, transmission, engine_size, engine_power, mileage,
			color, number_of_doors, number_of_seats, condition, vin, registration_number, previous_owners,
			has_accident_history, has_service_history, description, features
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			NULLIF($10, ''), $11, $12, $13, NULLIF($14, ''), NULLIF($15, ''), $16,
			$17, $18, NULLIF($19, ''), $20::jsonb
		)
		RETURNING id
	`,
		d.Make, d.Model, d.Year, string(d.BodyType), string(d.FuelType), string(d.Transmission), d.EngineSize, d.EnginePower, d.Mileage,
		d.Color, d.NumberOfDoors, d.NumberOfSeats, string(d.Condition), d.VIN, d.RegistrationNumber, d.PreviousOwners,
		d.HasAccidentHistory, d.HasServiceHistory, d.Description, string(features),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert car detail: %w", err)
	}
	return id, nil
}

func (t *pgListingTx) InsertListing(ctx context.Context, l Listing) (Listing, error) {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO listings AS l (
			seller_id, car_detail_id, title, description, price, price_type, status,
			location, city, state, country, postal_code, latitude, longitude, is_urgent, expires_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5, $6, $7,
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14, $15, $16
		)
		RETURNING `+listingColumns,
		l.SellerID, l.CarDetailID, l.Title, l.Description, l.Price, string(l.PriceType), string(l.Status),
		l.Location, l.City, l.State, l.Country, l.PostalCode, l.Latitude, l.Longitude, l.IsUrgent, l.ExpiresAt,
	)
	created, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	return created, nil
}

func (t *pgListingTx) InsertPendingChange(ctx context.Context, change PendingChange) (PendingChange, error) {
	changes, err := json.Marshal(change.Changes)
	if err != nil {
		return PendingChange{}, fmt.Errorf("encode changes: %w", err)
	}
	original, err := json.Marshal(change.OriginalValues)
	if err != nil {
		return PendingChange{}, fmt.Errorf("encode original values: %w", err)
	}
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO listing_pending_changes (listing_id, changed_by_user_id, changes, original_values, base_version)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5)
		RETURNING `+pendingChangeColumns,
		change.ListingID, change.ChangedByUserID, string(changes), string(original), change.BaseVersion,
	)
	created, err := scanPendingChange(row)
	if err != nil {
		return PendingChange{}, fmt.Errorf("insert pending change: %w", err)
	}
	return created, nil
}

// ListUnappliedChanges returns the queue in application order, oldest first.
func (t *pgListingTx) ListUnappliedChanges(ctx context.Context, listingID string) ([]PendingChange, error) {
	return listPendingChanges(ctx, t.tx, listingID, true, "ASC")
}

func (t *pgListingTx) ApplyListingPatch(ctx context.Context, listingID string, patch listing.ListingPatch) error {
	return t.updateColumns(ctx, "listings", listingID, listingPatchColumns(patch))
}

func (t *pgListingTx) ApplyCarDetailPatch(ctx context.Context, carDetailID string, patch listing.CarDetailPatch) error {
	columns, err := carDetailPatchColumns(patch)
	if err != nil {
		return err
	}
	return t.updateColumns(ctx, "car_details", carDetailID, columns)
}

// ReplaceImages swaps the whole gallery. The first image becomes primary.
// The removed rows are returned so their objects can be cleaned up.
func (t *pgListingTx) ReplaceImages(ctx context.Context, carDetailID string, images []listing.ImageInput) ([]CarImage, error) {
	removed, err := listImages(ctx, t.tx, carDetailID)
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM car_images WHERE car_detail_id=$1`, carDetailID); err != nil {
		return nil, fmt.Errorf("delete images: %w", err)
	}
	for i, img := range images {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO car_images (car_detail_id, filename, original_name, url, type, sort_order, is_primary, file_size, mime_type, alt)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, 0), $9, NULLIF($10, ''))
		`, carDetailID, img.Filename, img.OriginalName, img.URL, string(img.Type), i, i == 0, img.FileSize, img.MimeType, img.Alt)
		if err != nil {
			return nil, fmt.Errorf("insert image %d: %w", i, err)
		}
	}
	return removed, nil
}

func (t *pgListingTx) MarkChangeApplied(ctx context.Context, changeID, adminID string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE listing_pending_changes
		SET is_applied=TRUE, applied_at=$2, applied_by_user_id=$3, updated_at=NOW()
		WHERE id=$1 AND NOT is_applied
	`, changeID, at, adminID)
	if err != nil {
		return fmt.Errorf("mark change applied: %w", err)
	}
	return requireAffected(result)
}

// SetListingStatus writes the new status and bumps version. approved_at,
// rejected_at and sold_at keep their first value.
func (t *pgListingTx) SetListingStatus(ctx context.Context, change StatusChange) (Listing, error) {
	row := t.tx.QueryRowContext(ctx, `
		UPDATE listings AS l SET
			status = $2,
			approved_at = CASE WHEN $2 = 'approved' THEN COALESCE(l.approved_at, $3) ELSE l.approved_at END,
			rejected_at = CASE WHEN $2 = 'rejected' THEN COALESCE(l.rejected_at, $3) ELSE l.rejected_at END,
			sold_at = CASE WHEN $2 = 'sold' THEN COALESCE(l.sold_at, $3) ELSE l.sold_at END,
			rejection_reason = COALESCE($4, l.rejection_reason),
			is_active = COALESCE($5, l.is_active),
			version = l.version + 1,
			updated_at = NOW()
		WHERE l.id = $1
		RETURNING `+listingColumns,
		change.ListingID, string(change.Status), change.At, change.RejectionReason, change.IsActive,
	)
	updated, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("set listing status: %w", err)
	}
	return updated, nil
}

func (t *pgListingTx) BumpListingVersion(ctx context.Context, listingID string) (int, error) {
	var version int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE listings SET version = version + 1, updated_at = NOW() WHERE id=$1 RETURNING version
	`, listingID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("bump listing version: %w", err)
	}
	return version, nil
}

func (t *pgListingTx) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO transactions (
			transaction_number, listing_id, buyer_id, seller_id, amount, platform_fee, status, payment_method, notes, completed_at
		) VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING id, created_at
	`,
		txn.TransactionNumber, txn.ListingID, txn.BuyerID, txn.SellerID, txn.Amount, txn.PlatformFee,
		txn.Status, txn.PaymentMethod, txn.Notes, txn.CompletedAt,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return txn, nil
}

func (t *pgListingTx) DeleteCarDetail(ctx context.Context, carDetailID string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM car_details WHERE id=$1`, carDetailID)
	if err != nil {
		return fmt.Errorf("delete car detail: %w", err)
	}
	return requireAffected(result)
}

type column struct {
	name  string
	value any
}

func (t *pgListingTx) updateColumns(ctx context.Context, table, id string, columns []column) error {
	if len(columns) == 0 {
		return nil
	}
	assignments := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	args = append(args, id)
	for _, c := range columns {
		args = append(args, c.value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", c.name, len(args)))
	}
	assignments = append(assignments, "updated_at = NOW()")

	result, err := t.tx.ExecContext(ctx,
		`UPDATE `+table+` SET `+strings.Join(assignments, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return requireAffected(result)
}

func enumValue[T ~string](o listing.Opt[T]) any {
	if !o.Valid {
		return nil
	}
	return string(o.V)
}

func listingPatchColumns(p listing.ListingPatch) []column {
	var columns []column
	add := func(set bool, name string, value any) {
		if set {
			columns = append(columns, column{name: name, value: value})
		}
	}
	add(p.Title.Set, "title", p.Title.Value())
	add(p.Description.Set, "description", p.Description.Value())
	add(p.Price.Set, "price", p.Price.Value())
	add(p.PriceType.Set, "price_type", enumValue(p.PriceType))
	add(p.Location.Set, "location", p.Location.Value())
	add(p.City.Set, "city", p.City.Value())
	add(p.State.Set, "state", p.State.Value())
	add(p.Country.Set, "country", p.Country.Value())
	add(p.PostalCode.Set, "postal_code", p.PostalCode.Value())
	add(p.Latitude.Set, "latitude", p.Latitude.Value())
	add(p.Longitude.Set, "longitude", p.Longitude.Value())
	add(p.IsUrgent.Set, "is_urgent", p.IsUrgent.Value())
	add(p.ExpiresAt.Set, "expires_at", p.ExpiresAt.Value())
	return columns
}

func carDetailPatchColumns(p listing.CarDetailPatch) ([]column, error) {
	var columns []column
	add := func(set bool, name string, value any) {
		if set {
			columns = append(columns, column{name: name, value: value})
		}
	}
	add(p.Make.Set, "make", p.Make.Value())
	add(p.Model.Set, "model", p.Model.Value())
	add(p.Year.Set, "year", p.Year.Value())
	add(p.BodyType.Set, "body_type", enumValue(p.BodyType))
	add(p.FuelType.Set, "fuel_type", enumValue(p.FuelType))
	add(p.Transmission.Set, "transmission", enumValue(p.Transmission))
	add(p.EngineSize.Set, "engine_size", p.EngineSize.Value())
	add(p.EnginePower.Set, "engine_power", p.EnginePower.Value())
	add(p.Mileage.Set, "mileage", p.Mileage.Value())
	add(p.Color.Set, "color", p.Color.Value())
	add(p.NumberOfDoors.Set, "number_of_doors", p.NumberOfDoors.Value())
	add(p.NumberOfSeats.Set, "number_of_seats", p.NumberOfSeats.Value())
	add(p.Condition.Set, "condition", enumValue(p.Condition))
	add(p.VIN.Set, "vin", p.VIN.Value())
	add(p.RegistrationNumber.Set, "registration_number", p.RegistrationNumber.Value())
	add(p.PreviousOwners.Set, "previous_owners", p.PreviousOwners.Value())
	add(p.HasAccidentHistory.Set, "has_accident_history", p.HasAccidentHistory.Value())
	add(p.HasServiceHistory.Set, "has_service_history", p.HasServiceHistory.Value())
	add(p.Description.Set, "description", p.Description.Value())
	if p.Features.Set {
		encoded, err := json.Marshal(nonNilFeatures(p.Features.V))
		if err != nil {
			return nil, fmt.Errorf("encode features: %w", err)
		}
		columns = append(columns, column{name: "features", value: string(encoded)})
	}
	return columns, nil
}

func nonNilFeatures(features []string) []string {
	if features == nil {
		return []string{}
	}
	return features
}
