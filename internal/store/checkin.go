package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
	"grandbridge/internal/wellness"
)

const checkinColumns = `id, user_id, check_in_date, energy_level, mood_rating, stress_level,
	sleep_quality, took_breaks, ate_well, connected_with_others, did_something_enjoyable,
	grateful_for, biggest_challenge, created_at`

func scanCheckIn(row pgx.Row) (*model.CheckIn, error) {
	c := &model.CheckIn{}
	err := row.Scan(&c.ID, &c.UserID, &c.Date, &c.EnergyLevel, &c.MoodRating, &c.StressLevel,
		&c.SleepQuality, &c.TookBreaks, &c.AteWell, &c.ConnectedWithOthers,
		&c.DidSomethingEnjoyable, &c.GratefulFor, &c.BiggestChallenge, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) listCheckIns(ctx context.Context, q string, args ...any) ([]model.CheckIn, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CheckInOn(ctx context.Context, userID int64, day time.Time) (*model.CheckIn, error) {
	return scanCheckIn(s.pool.QueryRow(ctx,
		`SELECT `+checkinColumns+` FROM daily_checkins WHERE user_id = $1 AND check_in_date = $2`,
		userID, model.Civil(day)))
}

func (s *Store) GetCheckIn(ctx context.Context, id int64) (*model.CheckIn, error) {
	return scanCheckIn(s.pool.QueryRow(ctx,
		`SELECT `+checkinColumns+` FROM daily_checkins WHERE id = $1`, id))
}

// CreateCheckIn stores today's check-in, pays the check-in coins and moves the
// check-in streak. ErrDuplicate when the day already has one.
func (s *Store) CreateCheckIn(ctx context.Context, c *model.CheckIn) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		u, err := lockUser(ctx, tx, c.UserID)
		if err != nil {
			return err
		}
		day := model.Civil(c.Date)
		err = tx.QueryRow(ctx,
			`INSERT INTO daily_checkins (user_id, check_in_date, energy_level, mood_rating, stress_level,
			        sleep_quality, took_breaks, ate_well, connected_with_others, did_something_enjoyable,
			        grateful_for, biggest_challenge)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at`,
			c.UserID, day, c.EnergyLevel, c.MoodRating, c.StressLevel, c.SleepQuality,
			c.TookBreaks, c.AteWell, c.ConnectedWithOthers, c.DidSomethingEnjoyable,
			c.GratefulFor, c.BiggestChallenge,
		).Scan(&c.ID, &c.CreatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}

		var hadYesterday bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM daily_checkins WHERE user_id = $1 AND check_in_date = $2)`,
			c.UserID, day.AddDate(0, 0, -1),
		).Scan(&hadYesterday); err != nil {
			return err
		}
		if hadYesterday {
			u.CheckinStreak++
		} else {
			u.CheckinStreak = 1
		}
		u.Coins += wellness.CheckInCoins
		return saveCounters(ctx, tx, u)
	})
}

func (s *Store) RecentCheckIns(ctx context.Context, userID int64, limit int) ([]model.CheckIn, error) {
	return s.listCheckIns(ctx,
		`SELECT `+checkinColumns+` FROM daily_checkins
		 WHERE user_id = $1 ORDER BY check_in_date DESC LIMIT $2`, userID, limit)
}

// CheckInsBetween returns check-ins with from <= date <= to, oldest first.
func (s *Store) CheckInsBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.CheckIn, error) {
	return s.listCheckIns(ctx,
		`SELECT `+checkinColumns+` FROM daily_checkins
		 WHERE user_id = $1 AND check_in_date BETWEEN $2 AND $3
		 ORDER BY check_in_date`, userID, model.Civil(from), model.Civil(to))
}
