package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/geo"
	"grandbridge/internal/model"
)

const locationColumns = `id, latitude, longitude, name, address, description, operating_hours,
	contact_info, capacity, food_types, is_active, created_by, created_at, updated_at`

func scanLocation(row pgx.Row) (*model.Location, error) {
	l := &model.Location{}
	err := row.Scan(&l.ID, &l.Latitude, &l.Longitude, &l.Name, &l.Address, &l.Description,
		&l.OperatingHours, &l.ContactInfo, &l.Capacity, &l.FoodTypes, &l.IsActive,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (s *Store) listLocations(ctx context.Context, q string, args ...any) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) Locations(ctx context.Context) ([]model.Location, error) {
	return s.listLocations(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
}

// SearchLocations matches keyword case-insensitively against name, address and food types.
func (s *Store) SearchLocations(ctx context.Context, keyword string) ([]model.Location, error) {
	if keyword == "" {
		return s.Locations(ctx)
	}
	return s.listLocations(ctx,
		`SELECT `+locationColumns+` FROM locations
		 WHERE name ILIKE $1 OR address ILIKE $1 OR food_types ILIKE $1
		 ORDER BY id`, "%"+likeEscape(keyword)+"%")
}

// LocationSuggestions returns up to limit locations whose names contain q, one per name.
func (s *Store) LocationSuggestions(ctx context.Context, q string, limit int) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address FROM (
		     SELECT DISTINCT ON (name) id, name, address FROM locations
		     WHERE name ILIKE $1 AND name <> '' ORDER BY name, id
		 ) s ORDER BY id LIMIT $2`, "%"+likeEscape(q)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func insertLocation(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, l *model.Location) error {
	if l.Name == "" {
		l.Name = "Food Pickup Point"
	}
	return q.QueryRow(ctx,
		`INSERT INTO locations (latitude, longitude, name, address, description, operating_hours,
		                        contact_info, capacity, food_types, is_active, created_by)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		l.Latitude, l.Longitude, l.Name, l.Address, l.Description, l.OperatingHours,
		l.ContactInfo, l.Capacity, l.FoodTypes, l.IsActive, l.CreatedBy,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// SaveLocation inserts l unless another location lies within geo.DuplicateKm.
func (s *Store) SaveLocation(ctx context.Context, l *model.Location) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		// serialize duplicate checks
		if _, err := tx.Exec(ctx, `LOCK TABLE locations IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		existing, err := locationPoints(ctx, tx)
		if err != nil {
			return err
		}
		if geo.Near(existing, geo.Point{Lat: l.Latitude, Lng: l.Longitude}, geo.DuplicateKm) {
			return ErrDuplicate
		}
		return insertLocation(ctx, tx, l)
	})
}

type BulkResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// BulkSaveLocations inserts every location that is not a near-duplicate of an
// existing one or of one added earlier in the same batch.
func (s *Store) BulkSaveLocations(ctx context.Context, locs []model.Location, invalid []string) (*BulkResult, error) {
	res := &BulkResult{Errors: append([]string{}, invalid...)}
	err := s.tx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE locations IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		points, err := locationPoints(ctx, tx)
		if err != nil {
			return err
		}
		for i := range locs {
			l := &locs[i]
			p := geo.Point{Lat: l.Latitude, Lng: l.Longitude}
			if geo.Near(points, p, geo.DuplicateKm) {
				res.Skipped++
				continue
			}
			if err := insertLocation(ctx, tx, l); err != nil {
				return fmt.Errorf("location %d: %w", i, err)
			}
			points = append(points, p)
			res.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func locationPoints(ctx context.Context, tx pgx.Tx) ([]geo.Point, error) {
	rows, err := tx.Query(ctx, `SELECT latitude, longitude FROM locations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteLocation removes a location and returns what was removed.
func (s *Store) DeleteLocation(ctx context.Context, id int64) (*model.Location, error) {
	return scanLocation(s.pool.QueryRow(ctx, `DELETE FROM locations WHERE id = $1 RETURNING `+locationColumns, id))
}

type LocationStats struct {
	Total      int             `json:"total_locations"`
	Active     int             `json:"active_locations"`
	AddedToday int             `json:"added_today"`
	MostRecent *model.Location `json:"-"`
}

func (s *Store) LocationStatistics(ctx context.Context) (*LocationStats, error) {
	st := &LocationStats{}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE is_active),
		        count(*) FILTER (WHERE created_at >= date_trunc('day', now()))
		 FROM locations`,
	).Scan(&st.Total, &st.Active, &st.AddedToday); err != nil {
		return nil, err
	}
	l, err := scanLocation(s.pool.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM locations ORDER BY id DESC LIMIT 1`))
	switch {
	case err == nil:
		st.MostRecent = l
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return st, nil
}

func likeEscape(s string) string {
	r := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
