package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches public listings with PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const publicListing = `l.status IN ('approved', 'sold') AND l.is_active AND (l.expires_at IS NULL OR l.expires_at > NOW())`

// Search ranks the generated fts column and also matches make or model by
// prefix, so "toyo" finds Toyota listings.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	args := []any{text, text + "%"}
	where := []string{
		publicListing,
		"(l.fts @@ plainto_tsquery('english', $1) OR c.make ILIKE $2 OR c.model ILIKE $2)",
	}
	add := func(column, value string) {
		if value = strings.TrimSpace(value); value != "" {
			args = append(args, value)
			where = append(where, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
		}
	}
	add("c.make", q.Make)
	add("c.fuel_type", q.FuelType)
	add("c.body_type", q.BodyType)
	add("l.city", q.City)

	from := ` FROM listings l JOIN car_details c ON c.id = l.car_detail_id WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT l.id, l.title,
			ts_headline('english', coalesce(l.description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30'),
			c.make, c.model, c.year, l.price::text, COALESCE(l.city, ''), l.status,
			COALESCE((SELECT i.url FROM car_images i WHERE i.car_detail_id = c.id AND i.is_primary LIMIT 1), '')
		%s
		ORDER BY ts_rank(l.fts, plainto_tsquery('english', $1)) DESC, l.created_at DESC
		LIMIT %d OFFSET %d`, from, q.Limit, q.Offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Make, &r.Model, &r.Year, &r.Price, &r.City, &r.Status, &r.ImageURL); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every public listing for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ListingRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.title, COALESCE(l.description, ''), c.make, c.model, c.year, l.price::text, c.mileage,
			c.fuel_type, c.body_type, c.transmission, COALESCE(l.city, ''), l.status,
			COALESCE((SELECT i.url FROM car_images i WHERE i.car_detail_id = c.id AND i.is_primary LIMIT 1), ''),
			EXTRACT(EPOCH FROM l.created_at)::bigint
		FROM listings l
		JOIN car_details c ON c.id = l.car_detail_id
		WHERE `+publicListing)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer rows.Close()

	records := make([]ListingRecord, 0)
	for rows.Next() {
		var r ListingRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Make, &r.Model, &r.Year, &r.Price, &r.Mileage,
			&r.FuelType, &r.BodyType, &r.Transmission, &r.City, &r.Status, &r.ImageURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing records: %w", err)
	}
	return records, nil
}
