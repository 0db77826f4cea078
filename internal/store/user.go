package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
)

const userColumns = `id, username, email, password_hash, is_admin, address, contact_info, family_id,
	google_id, google_token, ics_url, last_plant_date, streak, coins, plant_count,
	unlocked_vegetables, mindfulness_streak, last_mindfulness_date, total_mindful_minutes,
	checkin_streak, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var token []byte
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.Address,
		&u.ContactInfo, &u.FamilyID, &u.GoogleID, &token, &u.ICSURL, &u.LastPlantDate,
		&u.Streak, &u.Coins, &u.PlantCount, &u.UnlockedVegetables, &u.MindfulnessStreak,
		&u.LastMindfulnessDate, &u.TotalMindfulMinutes, &u.CheckinStreak, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.GoogleToken = token
	return u, nil
}

// RegisterUser inserts u. Non-admins always end up in a family: the one named by
// familyID (created with that id when missing) or a fresh one named after them.
func (s *Store) RegisterUser(ctx context.Context, u *model.User, familyID *int64) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		if !u.IsAdmin {
			fid, err := ensureFamily(ctx, tx, familyID, u.Username)
			if err != nil {
				return err
			}
			u.FamilyID = &fid
		} else {
			u.FamilyID = nil
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, password_hash, is_admin, family_id)
			 VALUES ($1,$2,$3,$4,$5)
			 RETURNING id, created_at, updated_at, unlocked_vegetables`,
			u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.FamilyID,
		).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.UnlockedVegetables)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

// ensureFamily returns the id of family familyID, creating it under that id when it
// does not exist, or creates a new family named name when familyID is nil.
func ensureFamily(ctx context.Context, tx pgx.Tx, familyID *int64, name string) (int64, error) {
	if familyID == nil {
		var id int64
		err := tx.QueryRow(ctx, `INSERT INTO families (name) VALUES ($1) RETURNING id`, name).Scan(&id)
		return id, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM families WHERE id = $1)`, *familyID).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return *familyID, nil
	}
	if _, err := tx.Exec(ctx, `INSERT INTO families (id, name) VALUES ($1,$2)`, *familyID, name); err != nil {
		return 0, err
	}
	// keep the sequence ahead of explicitly chosen ids
	_, err := tx.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('families','id'), GREATEST((SELECT max(id) FROM families), 1))`)
	return *familyID, err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) UserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`,
		email, exceptID,
	).Scan(&taken)
	return taken, err
}

// UpdateAccount saves profile fields. For non-admins familyID selects an existing
// family (ErrNotFound when missing); nil creates a new family named after the user.
func (s *Store) UpdateAccount(ctx context.Context, u *model.User, familyID *int64) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		if !u.IsAdmin {
			if familyID != nil {
				var exists bool
				if err := tx.QueryRow(ctx,
					`SELECT EXISTS(SELECT 1 FROM families WHERE id = $1)`, *familyID,
				).Scan(&exists); err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("family %d: %w", *familyID, ErrNotFound)
				}
				u.FamilyID = familyID
			} else {
				fid, err := ensureFamily(ctx, tx, nil, u.Username)
				if err != nil {
					return err
				}
				u.FamilyID = &fid
			}
		}

		_, err := tx.Exec(ctx,
			`UPDATE users SET username = $1, email = $2, address = $3, contact_info = $4,
			        family_id = $5, updated_at = now()
			 WHERE id = $6`,
			u.Username, u.Email, u.Address, u.ContactInfo, u.FamilyID, u.ID)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetGoogleAccount(ctx context.Context, uid int64, googleID string, token []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET google_id = $1, google_token = $2, updated_at = now() WHERE id = $3`,
		googleID, token, uid)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) SetGoogleToken(ctx context.Context, uid int64, token []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET google_token = $1, updated_at = now() WHERE id = $2`, token, uid)
	return err
}

func (s *Store) ClearGoogleAccount(ctx context.Context, uid int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET google_id = NULL, google_token = NULL, updated_at = now() WHERE id = $1`, uid)
	return err
}

func (s *Store) SetICSURL(ctx context.Context, uid int64, url string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET ics_url = $1, updated_at = now() WHERE id = $2`, url, uid)
	return err
}

func (s *Store) listUsers(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// FamilyMembers lists the non-admin users of a family.
func (s *Store) FamilyMembers(ctx context.Context, familyID int64) ([]model.User, error) {
	return s.listUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE family_id = $1 AND NOT is_admin ORDER BY username`, familyID)
}

// FamilyAdmins lists the admins managing a family.
func (s *Store) FamilyAdmins(ctx context.Context, familyID int64) ([]model.User, error) {
	return s.listUsers(ctx,
		`SELECT `+prefixed("u", userColumns)+` FROM users u
		 JOIN admin_families af ON af.admin_id = u.id
		 WHERE af.family_id = $1 ORDER BY u.username`, familyID)
}
