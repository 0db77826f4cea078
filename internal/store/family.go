package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
)

func (s *Store) FamilyByID(ctx context.Context, id int64) (*model.Family, error) {
	f := &model.Family{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM families WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (s *Store) listFamilies(ctx context.Context, q string, args ...any) ([]model.Family, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Family
	for rows.Next() {
		var f model.Family
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) FamiliesByIDs(ctx context.Context, ids []int64) ([]model.Family, error) {
	return s.listFamilies(ctx,
		`SELECT id, name, created_at FROM families WHERE id = ANY($1) ORDER BY id`, ids)
}

// AdminFamilies lists the families an admin manages.
func (s *Store) AdminFamilies(ctx context.Context, adminID int64) ([]model.Family, error) {
	return s.listFamilies(ctx,
		`SELECT f.id, f.name, f.created_at FROM families f
		 JOIN admin_families af ON af.family_id = f.id
		 WHERE af.admin_id = $1 ORDER BY f.id`, adminID)
}

func (s *Store) AdminFamilyIDs(ctx context.Context, adminID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT family_id FROM admin_families WHERE admin_id = $1 ORDER BY family_id`, adminID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *Store) IsFamilyAdmin(ctx context.Context, adminID, familyID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_families WHERE admin_id = $1 AND family_id = $2)`,
		adminID, familyID,
	).Scan(&ok)
	return ok, err
}

// CreateManagedFamily creates a family and makes adminID its admin.
func (s *Store) CreateManagedFamily(ctx context.Context, adminID int64, name string) (*model.Family, error) {
	f := &model.Family{Name: name}
	err := s.tx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO families (name) VALUES ($1) RETURNING id, created_at`, name,
		).Scan(&f.ID, &f.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO admin_families (admin_id, family_id) VALUES ($1,$2)`, adminID, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// JoinFamilyAsAdmin links adminID to an existing family. added is false when the
// link already existed.
func (s *Store) JoinFamilyAsAdmin(ctx context.Context, adminID, familyID int64) (added bool, err error) {
	if _, err := s.FamilyByID(ctx, familyID); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO admin_families (admin_id, family_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		adminID, familyID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RemoveFamilyAdmin(ctx context.Context, adminID, familyID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM admin_families WHERE admin_id = $1 AND family_id = $2`, adminID, familyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) RenameFamily(ctx context.Context, id int64, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE families SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
