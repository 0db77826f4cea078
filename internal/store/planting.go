package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
	"grandbridge/internal/wellness"
)

var (
	ErrAlreadyHarvested = errors.New("vegetable already harvested")
	ErrNotEnoughCoins   = errors.New("not enough coins")
	ErrAlreadyUnlocked  = errors.New("vegetable already unlocked")
)

const vegetableColumns = `id, user_id, name, type, planted_at, harvested, stage, seed_image,
	sprout_image, harvest_image, note, intention, mood_before, mood_after, harvested_at`

func scanVegetable(row pgx.Row) (*model.Vegetable, error) {
	v := &model.Vegetable{}
	err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.Type, &v.PlantedAt, &v.Harvested, &v.Stage,
		&v.SeedImage, &v.SproutImage, &v.HarvestImg, &v.Note, &v.Intention, &v.MoodBefore,
		&v.MoodAfter, &v.HarvestedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (s *Store) listVegetables(ctx context.Context, q string, args ...any) ([]model.Vegetable, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Vegetable
	for rows.Next() {
		v, err := scanVegetable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Store) CreateVegetable(ctx context.Context, v *model.Vegetable) error {
	if v.Stage == "" {
		v.Stage = model.StageSeed
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO vegetables (user_id, name, type, stage, seed_image, sprout_image, harvest_image,
		                         note, intention, mood_before)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, planted_at`,
		v.UserID, v.Name, v.Type, v.Stage, v.SeedImage, v.SproutImage, v.HarvestImg,
		v.Note, v.Intention, v.MoodBefore,
	).Scan(&v.ID, &v.PlantedAt)
}

func (s *Store) GetVegetable(ctx context.Context, id int64) (*model.Vegetable, error) {
	return scanVegetable(s.pool.QueryRow(ctx,
		`SELECT `+vegetableColumns+` FROM vegetables WHERE id = $1`, id))
}

// Vegetables lists a user's plants newest first; limit <= 0 means all.
func (s *Store) Vegetables(ctx context.Context, userID int64, harvestedOnly bool, limit int) ([]model.Vegetable, error) {
	q := `SELECT ` + vegetableColumns + ` FROM vegetables WHERE user_id = $1`
	if harvestedOnly {
		q += ` AND harvested`
	}
	q += ` ORDER BY planted_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.listVegetables(ctx, q, args...)
}

func (s *Store) VegetablesSince(ctx context.Context, userID int64, since time.Time) ([]model.Vegetable, error) {
	return s.listVegetables(ctx,
		`SELECT `+vegetableColumns+` FROM vegetables
		 WHERE user_id = $1 AND planted_at >= $2 ORDER BY planted_at`, userID, since)
}

func (s *Store) HarvestedCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM vegetables WHERE user_id = $1 AND harvested`, userID).Scan(&n)
	return n, err
}

// AdvanceStage moves a growing vegetable from one stage to the next.
func (s *Store) AdvanceStage(ctx context.Context, id int64, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vegetables SET stage = $1 WHERE id = $2 AND stage = $3 AND NOT harvested`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetMoodAfter(ctx context.Context, id int64, mood int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vegetables SET mood_after = $1 WHERE id = $2`, mood, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type HarvestResult struct {
	Coins             int
	Streak            int
	MindfulnessStreak int
	Unlocked          []model.Achievement
}

// lockUser loads the wellness counters of a user inside tx for update.
func lockUser(ctx context.Context, tx pgx.Tx, userID int64) (*model.User, error) {
	return scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
}

// mindful credits a completed activity to u and logs it.
func mindful(ctx context.Context, tx pgx.Tx, u *model.User, a wellness.Activity, coins int, today time.Time) error {
	u.Coins += coins
	u.TotalMindfulMinutes += a.Minutes
	if u.LastMindfulnessDate == nil || !model.Civil(*u.LastMindfulnessDate).Equal(model.Civil(today)) {
		u.MindfulnessStreak = wellness.NextStreak(u.LastMindfulnessDate, today, u.MindfulnessStreak)
		d := model.Civil(today)
		u.LastMindfulnessDate = &d
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO mindfulness_logs (user_id, activity_type, activity_id, duration_minutes, coins_earned)
		 VALUES ($1,$2,$3,$4,$5)`,
		u.ID, a.Type, a.ID, a.Minutes, a.Coins)
	return err
}

func saveCounters(ctx context.Context, tx pgx.Tx, u *model.User) error {
	_, err := tx.Exec(ctx,
		`UPDATE users SET coins = $1, plant_count = $2, streak = $3, last_plant_date = $4,
		        mindfulness_streak = $5, last_mindfulness_date = $6, total_mindful_minutes = $7,
		        checkin_streak = $8, unlocked_vegetables = $9, updated_at = now()
		 WHERE id = $10`,
		u.Coins, u.PlantCount, u.Streak, u.LastPlantDate, u.MindfulnessStreak,
		u.LastMindfulnessDate, u.TotalMindfulMinutes, u.CheckinStreak, u.UnlockedVegetables, u.ID)
	return err
}

// Harvest completes the breathing exercise for a vegetable: it is marked harvested,
// the owner is paid, streaks move and any newly reached achievements are granted.
func (s *Store) Harvest(ctx context.Context, userID, vegID int64, now time.Time) (*HarvestResult, error) {
	res := &HarvestResult{}
	err := s.tx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE vegetables SET harvested = true, stage = $1, harvested_at = $2
			 WHERE id = $3 AND user_id = $4 AND NOT harvested`,
			model.StageHarvest, now, vegID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyHarvested
		}

		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.PlantCount++
		if err := mindful(ctx, tx, u, wellness.PlantBreathing, wellness.HarvestCoins, now); err != nil {
			return err
		}
		u.Streak = wellness.NextStreak(u.LastPlantDate, now, u.Streak)
		d := model.Civil(now)
		u.LastPlantDate = &d
		if err := saveCounters(ctx, tx, u); err != nil {
			return err
		}

		res.Coins, res.Streak, res.MindfulnessStreak = u.Coins, u.Streak, u.MindfulnessStreak
		res.Unlocked, err = grantAchievements(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func grantAchievements(ctx context.Context, tx pgx.Tx, u *model.User) ([]model.Achievement, error) {
	rows, err := tx.Query(ctx, `SELECT name FROM achievements WHERE user_id = $1`, u.ID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}

	var harvested int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM vegetables WHERE user_id = $1 AND harvested`, u.ID,
	).Scan(&harvested); err != nil {
		return nil, err
	}

	var out []model.Achievement
	for _, m := range wellness.NewAchievements(wellness.Progress{
		PlantCount: u.PlantCount, Coins: u.Coins, Streak: u.Streak, Harvested: harvested,
	}, have) {
		a := model.Achievement{UserID: u.ID, Name: m.Name, Description: m.Description}
		if err := tx.QueryRow(ctx,
			`INSERT INTO achievements (user_id, name, description) VALUES ($1,$2,$3)
			 RETURNING id, earned_at`, a.UserID, a.Name, a.Description,
		).Scan(&a.ID, &a.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CompleteActivity credits a mindfulness activity and returns the updated user.
func (s *Store) CompleteActivity(ctx context.Context, userID int64, a wellness.Activity, now time.Time) (*model.User, error) {
	var u *model.User
	err := s.tx(ctx, func(tx pgx.Tx) error {
		var err error
		if u, err = lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := mindful(ctx, tx, u, a, a.Coins, now); err != nil {
			return err
		}
		return saveCounters(ctx, tx, u)
	})
	return u, err
}

// Unlock spends wellness.UnlockCost coins on a new vegetable.
func (s *Store) Unlock(ctx context.Context, userID int64, key string) (*model.User, error) {
	var u *model.User
	err := s.tx(ctx, func(tx pgx.Tx) error {
		var err error
		if u, err = lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if slices.Contains(u.UnlockedVegetables, key) {
			return ErrAlreadyUnlocked
		}
		if u.Coins < wellness.UnlockCost {
			return ErrNotEnoughCoins
		}
		u.Coins -= wellness.UnlockCost
		u.UnlockedVegetables = append(u.UnlockedVegetables, key)
		return saveCounters(ctx, tx, u)
	})
	return u, err
}

func (s *Store) listAchievements(ctx context.Context, q string, args ...any) ([]model.Achievement, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Achievements(ctx context.Context, userID int64) ([]model.Achievement, error) {
	return s.listAchievements(ctx,
		`SELECT id, user_id, name, description, earned_at FROM achievements
		 WHERE user_id = $1 ORDER BY earned_at`, userID)
}

func (s *Store) AchievementsSince(ctx context.Context, userID int64, since time.Time) ([]model.Achievement, error) {
	return s.listAchievements(ctx,
		`SELECT id, user_id, name, description, earned_at FROM achievements
		 WHERE user_id = $1 AND earned_at >= $2 ORDER BY earned_at`, userID, since)
}

func (s *Store) AchievementCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM achievements WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (s *Store) listLogs(ctx context.Context, q string, args ...any) ([]model.MindfulnessLog, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MindfulnessLog
	for rows.Next() {
		var l model.MindfulnessLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ActivityType, &l.ActivityID,
			&l.DurationMinutes, &l.CoinsEarned, &l.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) RecentMindfulness(ctx context.Context, userID int64, limit int) ([]model.MindfulnessLog, error) {
	return s.listLogs(ctx,
		`SELECT id, user_id, activity_type, activity_id, duration_minutes, coins_earned, completed_at
		 FROM mindfulness_logs WHERE user_id = $1 ORDER BY completed_at DESC LIMIT $2`, userID, limit)
}

func (s *Store) MindfulnessSince(ctx context.Context, userID int64, since time.Time) ([]model.MindfulnessLog, error) {
	return s.listLogs(ctx,
		`SELECT id, user_id, activity_type, activity_id, duration_minutes, coins_earned, completed_at
		 FROM mindfulness_logs WHERE user_id = $1 AND completed_at >= $2 ORDER BY completed_at`, userID, since)
}
