package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"carmarket/api/internal/listing"

	"github.com/google/uuid"
)

// listingColumns expects the listings table aliased as l.
const listingColumns = `
	l.id, l.seller_id, l.car_detail_id, l.title, COALESCE(l.description, ''), l.price, l.price_type, l.status,
	COALESCE(l.location, ''), COALESCE(l.city, ''), COALESCE(l.state, ''), COALESCE(l.country, ''), COALESCE(l.postal_code, ''),
	l.latitude, l.longitude, l.view_count, l.favorite_count, l.inquiry_count,
	l.is_active, l.is_featured, l.is_urgent, l.expires_at, l.approved_at, l.rejected_at,
	COALESCE(l.rejection_reason, ''), l.sold_at, l.version, l.created_at, l.updated_at`

// carDetailColumns expects the car_details table aliased as c.
const carDetailColumns = `
	c.id, c.make, c.model, c.year, c.body_type, c.fuel_type, c.transmission, c.engine_size, c.engine_power,
	c.mileage, COALESCE(c.color, ''), c.number_of_doors, c.number_of_seats, c.condition,
	COALESCE(c.vin, ''), COALESCE(c.registration_number, ''), c.previous_owners,
	c.has_accident_history, c.has_service_history, COALESCE(c.description, ''), c.features,
	c.created_at, c.updated_at`

const imageColumns = `
	id, car_detail_id, filename, COALESCE(original_name, ''), url, type, sort_order, is_primary,
	COALESCE(file_size, 0), mime_type, COALESCE(alt, ''), created_at`

const pendingChangeColumns = `
	id, listing_id, changed_by_user_id, changes, original_values, base_version, is_applied, applied_at,
	COALESCE(applied_by_user_id::text, ''), created_at, updated_at`

func listingDest(l *Listing) []any {
	return []any{
		&l.ID, &l.SellerID, &l.CarDetailID, &l.Title, &l.Description, &l.Price, &l.PriceType, &l.Status,
		&l.Location, &l.City, &l.State, &l.Country, &l.PostalCode,
		&l.Latitude, &l.Longitude, &l.ViewCount, &l.FavoriteCount, &l.InquiryCount,
		&l.IsActive, &l.IsFeatured, &l.IsUrgent, &l.ExpiresAt, &l.ApprovedAt, &l.RejectedAt,
		&l.RejectionReason, &l.SoldAt, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	}
}

func carDetailDest(c *CarDetail, features *[]byte) []any {
	return []any{
		&c.ID, &c.Make, &c.Model, &c.Year, &c.BodyType, &c.FuelType, &c.Transmission, &c.EngineSize, &c.EnginePower,
		&c.Mileage, &c.Color, &c.NumberOfDoors, &c.NumberOfSeats, &c.Condition,
		&c.VIN, &c.RegistrationNumber, &c.PreviousOwners,
		&c.HasAccidentHistory, &c.HasServiceHistory, &c.Description, features,
		&c.CreatedAt, &c.UpdatedAt,
	}
}

func decodeFeatures(raw []byte) []string {
	features := make([]string, 0)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &features)
	}
	return features
}

func scanListing(row rowScanner) (Listing, error) {
	var l Listing
	err := row.Scan(listingDest(&l)...)
	return l, err
}

func scanCarDetail(row rowScanner) (CarDetail, error) {
	var (
		c        CarDetail
		features []byte
	)
	if err := row.Scan(carDetailDest(&c, &features)...); err != nil {
		return CarDetail{}, err
	}
	c.Features = decodeFeatures(features)
	return c, nil
}

func scanImage(row rowScanner) (CarImage, error) {
	var img CarImage
	err := row.Scan(
		&img.ID, &img.CarDetailID, &img.Filename, &img.OriginalName, &img.URL, &img.Type, &img.SortOrder, &img.IsPrimary,
		&img.FileSize, &img.MimeType, &img.Alt, &img.CreatedAt,
	)
	return img, err
}

func scanPendingChange(row rowScanner) (PendingChange, error) {
	var (
		change            PendingChange
		changesRaw        []byte
		originalValuesRaw []byte
	)
	err := row.Scan(
		&change.ID, &change.ListingID, &change.ChangedByUserID, &changesRaw, &originalValuesRaw, &change.BaseVersion,
		&change.IsApplied, &change.AppliedAt, &change.AppliedByUserID, &change.CreatedAt, &change.UpdatedAt,
	)
	if err != nil {
		return PendingChange{}, err
	}
	if err := json.Unmarshal(changesRaw, &change.Changes); err != nil {
		return PendingChange{}, fmt.Errorf("decode pending change %s: %w", change.ID, err)
	}
	if len(originalValuesRaw) > 0 {
		_ = json.Unmarshal(originalValuesRaw, &change.OriginalValues)
	}
	return change, nil
}

func scanSummary(row rowScanner) (ListingSummary, error) {
	var (
		item     ListingSummary
		features []byte
	)
	dest := append(listingDest(&item.Listing), carDetailDest(&item.Car, &features)...)
	dest = append(dest, &item.PrimaryImageURL, &item.PendingChanges)
	if err := row.Scan(dest...); err != nil {
		return ListingSummary{}, err
	}
	item.Car.Features = decodeFeatures(features)
	return item, nil
}

// validID keeps malformed ids from reaching a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getListing(ctx context.Context, q dbtx, listingID string, forUpdate bool) (Listing, error) {
	if !validID(listingID) {
		return Listing{}, sql.ErrNoRows
	}
	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanListing(q.QueryRowContext(ctx, query, listingID))
}

func getCarDetail(ctx context.Context, q dbtx, carDetailID string) (CarDetail, error) {
	if !validID(carDetailID) {
		return CarDetail{}, sql.ErrNoRows
	}
	return scanCarDetail(q.QueryRowContext(ctx, `SELECT `+carDetailColumns+` FROM car_details c WHERE c.id=$1`, carDetailID))
}

func listImages(ctx context.Context, q dbtx, carDetailID string) ([]CarImage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+imageColumns+` FROM car_images
		WHERE car_detail_id=$1
		ORDER BY sort_order ASC, created_at ASC
	`, carDetailID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	images := make([]CarImage, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

func listPendingChanges(ctx context.Context, q dbtx, listingID string, onlyUnapplied bool, order string) ([]PendingChange, error) {
	query := `SELECT ` + pendingChangeColumns + ` FROM listing_pending_changes WHERE listing_id=$1`
	if onlyUnapplied {
		query += ` AND NOT is_applied`
	}
	query += ` ORDER BY created_at ` + order + `, id ` + order

	rows, err := q.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	defer rows.Close()

	changes := make([]PendingChange, 0)
	for rows.Next() {
		change, err := scanPendingChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending change: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending changes: %w", err)
	}
	return changes, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, listingID string) (Listing, error) {
	return getListing(ctx, s.db, listingID, false)
}

func (s *PostgresStore) GetCarDetail(ctx context.Context, carDetailID string) (CarDetail, error) {
	return getCarDetail(ctx, s.db, carDetailID)
}

func (s *PostgresStore) ListImages(ctx context.Context, carDetailID string) ([]CarImage, error) {
	return listImages(ctx, s.db, carDetailID)
}

// ListPendingChanges returns a listing's change history, newest first.
func (s *PostgresStore) ListPendingChanges(ctx context.Context, listingID string, onlyUnapplied bool) ([]PendingChange, error) {
	if !validID(listingID) {
		return []PendingChange{}, nil
	}
	return listPendingChanges(ctx, s.db, listingID, onlyUnapplied, "DESC")
}

const summarySelect = `SELECT ` + listingColumns + `, ` + carDetailColumns + `,
	COALESCE((SELECT i.url FROM car_images i WHERE i.car_detail_id = c.id AND i.is_primary LIMIT 1), ''),
	(SELECT COUNT(*) FROM listing_pending_changes p WHERE p.listing_id = l.id AND NOT p.is_applied)
	FROM listings l
	JOIN car_details c ON c.id = l.car_detail_id`

var listingSorts = map[string]string{
	"":           "l.is_featured DESC, l.created_at DESC",
	"newest":     "l.is_featured DESC, l.created_at DESC",
	"oldest":     "l.created_at ASC",
	"price_asc":  "l.price ASC, l.created_at DESC",
	"price_desc": "l.price DESC, l.created_at DESC",
	"year_desc":  "c.year DESC, l.created_at DESC",
	"mileage":    "c.mileage ASC, l.created_at DESC",
}

// ListPublicListings serves the storefront: approved or sold, active,
// unexpired listings filtered by vehicle attributes.
func (s *PostgresStore) ListPublicListings(ctx context.Context, filter ListingFilter) ([]ListingSummary, int, error) {
	conditions := []string{
		"l.status IN ('approved', 'sold')",
		"l.is_active",
		"(l.expires_at IS NULL OR l.expires_at > NOW())",
	}
	args := make([]any, 0)
	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if v := strings.TrimSpace(filter.Make); v != "" {
		add("c.make ILIKE $%d", v)
	}
	if v := strings.TrimSpace(filter.Model); v != "" {
		add("c.model ILIKE $%d", v)
	}
	if v := strings.TrimSpace(filter.City); v != "" {
		add("l.city ILIKE $%d", v)
	}
	if v := strings.TrimSpace(filter.FuelType); v != "" {
		add("c.fuel_type = $%d", v)
	}
	if v := strings.TrimSpace(filter.Transmission); v != "" {
		add("c.transmission = $%d", v)
	}
	if v := strings.TrimSpace(filter.BodyType); v != "" {
		add("c.body_type = $%d", v)
	}
	if filter.MinPrice != nil {
		add("l.price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("l.price <= $%d", *filter.MaxPrice)
	}
	if filter.MinYear > 0 {
		add("c.year >= $%d", filter.MinYear)
	}
	if filter.MaxYear > 0 {
		add("c.year <= $%d", filter.MaxYear)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM listings l JOIN car_details c ON c.id = l.car_detail_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	order, ok := listingSorts[filter.Sort]
	if !ok {
		order = listingSorts[""]
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := summarySelect + where + ` ORDER BY ` + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	items, err := s.querySummaries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListSellerListings returns every listing a seller owns, any status.
func (s *PostgresStore) ListSellerListings(ctx context.Context, sellerID string) ([]ListingSummary, error) {
	if !validID(sellerID) {
		return []ListingSummary{}, nil
	}
	return s.querySummaries(ctx, summarySelect+` WHERE l.seller_id = $1 ORDER BY l.created_at DESC`, sellerID)
}

// ListPendingListings is the moderation queue, oldest submission first.
func (s *PostgresStore) ListPendingListings(ctx context.Context, limit, offset int) ([]ListingSummary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending listings: %w", err)
	}
	limit, offset = pageBounds(limit, offset)
	items, err := s.querySummaries(ctx, summarySelect+`
		WHERE l.status = 'pending'
		ORDER BY l.updated_at ASC, l.id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) querySummaries(ctx context.Context, query string, args ...any) ([]ListingSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	items := make([]ListingSummary, 0)
	for rows.Next() {
		item, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return items, nil
}

// IncrementViewCount does not touch version or updated_at.
func (s *PostgresStore) IncrementViewCount(ctx context.Context, listingID string) error {
	if !validID(listingID) {
		return sql.ErrNoRows
	}
	_, err := s.db.ExecContext(ctx, `UPDATE listings SET view_count = view_count + 1 WHERE id=$1`, listingID)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

func (s *PostgresStore) ToggleFeatured(ctx context.Context, listingID string) (bool, error) {
	if !validID(listingID) {
		return false, sql.ErrNoRows
	}
	var featured bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE listings SET is_featured = NOT is_featured, version = version + 1, updated_at = NOW()
		WHERE id=$1
		RETURNING is_featured
	`, listingID).Scan(&featured)
	if err != nil {
		return false, err
	}
	return featured, nil
}

// DeleteListing removes the listing through its car detail; listings and
// images cascade. Pending change rows are kept as history.
func (s *PostgresStore) DeleteListing(ctx context.Context, listingID string) ([]CarImage, error) {
	var images []CarImage
	err := s.WithListingTx(ctx, func(tx ListingTx) error {
		current, err := tx.LockListing(ctx, listingID)
		if err != nil {
			return err
		}
		images, err = tx.ListImages(ctx, current.CarDetailID)
		if err != nil {
			return err
		}
		return tx.DeleteCarDetail(ctx, current.CarDetailID)
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (s *PostgresStore) DashboardCounts(ctx context.Context) (DashboardCounts, error) {
	counts := DashboardCounts{ByStatus: make(map[listing.Status]int)}
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM listings WHERE status = 'pending'),
			(SELECT COUNT(*) FROM transactions)
	`).Scan(&counts.TotalUsers, &counts.TotalListings, &counts.PendingListings, &counts.TotalTransactions); err != nil {
		return DashboardCounts{}, fmt.Errorf("dashboard totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`)
	if err != nil {
		return DashboardCounts{}, fmt.Errorf("dashboard by status: %w", err)
	}
	defer rows.Close()
	for _, status := range listing.Statuses() {
		counts.ByStatus[status] = 0
	}
	for rows.Next() {
		var (
			status listing.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return DashboardCounts{}, fmt.Errorf("scan status count: %w", err)
		}
		counts.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return DashboardCounts{}, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
