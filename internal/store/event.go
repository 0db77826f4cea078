package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
)

const eventColumns = `id, title, start_at, end_at, location, description, family_ids, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	e := &model.Event{}
	err := row.Scan(&e.ID, &e.Title, &e.Start, &e.End, &e.Location, &e.Description,
		&e.FamilyIDs, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Store) listEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO events (title, start_at, end_at, location, description, family_ids)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		e.Title, e.Start, e.End, e.Location, e.Description, e.FamilyIDs,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET title = $1, start_at = $2, end_at = $3, location = $4,
		        description = $5, family_ids = $6, updated_at = now()
		 WHERE id = $7`,
		e.Title, e.Start, e.End, e.Location, e.Description, e.FamilyIDs, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// VisibleEvents returns events overlapping [from, to) that share a family with
// familyIDs, ordered by start.
func (s *Store) VisibleEvents(ctx context.Context, familyIDs []int64, from, to time.Time) ([]model.Event, error) {
	if len(familyIDs) == 0 {
		return nil, nil
	}
	return s.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE family_ids && $1 AND start_at < $3 AND end_at >= $2
		 ORDER BY start_at`, familyIDs, from, to)
}

// EventsStartingBetween returns visible events whose start falls in [from, to).
func (s *Store) EventsStartingBetween(ctx context.Context, familyIDs []int64, from, to time.Time) ([]model.Event, error) {
	if len(familyIDs) == 0 {
		return nil, nil
	}
	return s.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE family_ids && $1 AND start_at >= $2 AND start_at < $3
		 ORDER BY start_at`, familyIDs, from, to)
}

// VisibleFamilyIDs is the set of families whose events u may see.
func (s *Store) VisibleFamilyIDs(ctx context.Context, u *model.User) ([]int64, error) {
	if u.IsAdmin {
		return s.AdminFamilyIDs(ctx, u.ID)
	}
	if u.FamilyID == nil {
		return nil, nil
	}
	return []int64{*u.FamilyID}, nil
}

func (s *Store) IsParticipant(ctx context.Context, eventID, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID,
	).Scan(&ok)
	return ok, err
}

// ToggleParticipation joins the event, or leaves it when already joined.
func (s *Store) ToggleParticipation(ctx context.Context, eventID, userID int64) (joined bool, err error) {
	err = s.tx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2`, eventID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			joined = false
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO event_participants (event_id, user_id) VALUES ($1,$2)`, eventID, userID)
		joined = err == nil
		return err
	})
	return joined, err
}

func (s *Store) Participants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.username, p.joined_at FROM event_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = $1 ORDER BY p.joined_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ParticipatedEventCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM event_participants WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}
