package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
)

// CreateFoodRecord stores a record with its entries atomically.
func (s *Store) CreateFoodRecord(ctx context.Context, r *model.FoodRecord) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO food_records (user_id, nutrition_advice) VALUES ($1,$2)
			 RETURNING id, submitted_at`, r.UserID, r.NutritionAdvice,
		).Scan(&r.ID, &r.SubmittedAt); err != nil {
			return err
		}
		for i := range r.Entries {
			e := &r.Entries[i]
			e.RecordID, e.UserID = r.ID, r.UserID
			if err := tx.QueryRow(ctx,
				`INSERT INTO food_entries (record_id, user_id, food_name, amount, unit, start_date, end_date)
				 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
				e.RecordID, e.UserID, e.FoodName, e.Amount, e.Unit,
				model.Civil(e.StartDate), model.Civil(e.EndDate),
			).Scan(&e.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// FoodRecords lists a user's records newest first with their entries.
func (s *Store) FoodRecords(ctx context.Context, userID int64) ([]model.FoodRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.user_id, r.submitted_at, r.nutrition_advice,
		        e.id, e.food_name, e.amount, e.unit, e.start_date, e.end_date
		 FROM food_records r
		 LEFT JOIN food_entries e ON e.record_id = r.id
		 WHERE r.user_id = $1
		 ORDER BY r.submitted_at DESC, r.id DESC, e.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FoodRecord
	for rows.Next() {
		var r model.FoodRecord
		var (
			eid        *int64
			name, unit *string
			amount     *float64
			start, end *time.Time
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.SubmittedAt, &r.NutritionAdvice,
			&eid, &name, &amount, &unit, &start, &end); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != r.ID {
			out = append(out, r)
		}
		if eid != nil {
			cur := &out[len(out)-1]
			cur.Entries = append(cur.Entries, model.FoodEntry{
				ID: *eid, RecordID: r.ID, UserID: r.UserID, FoodName: *name,
				Amount: *amount, Unit: *unit, StartDate: *start, EndDate: *end,
			})
		}
	}
	return out, rows.Err()
}

func (s *Store) GetFoodRecord(ctx context.Context, id int64) (*model.FoodRecord, error) {
	r := &model.FoodRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, submitted_at, nutrition_advice FROM food_records WHERE id = $1`, id,
	).Scan(&r.ID, &r.UserID, &r.SubmittedAt, &r.NutritionAdvice)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Store) DeleteFoodRecord(ctx context.Context, id, userID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM food_records WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
