package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"grandbridge/internal/model"
)

func (s *Store) CreateMemories(ctx context.Context, ms []model.Memory) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		for i := range ms {
			m := &ms[i]
			if err := tx.QueryRow(ctx,
				`INSERT INTO memories (user_id, filename, stored_name, filetype, text)
				 VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
				m.UserID, m.Filename, m.StoredName, m.Filetype, m.Text,
			).Scan(&m.ID, &m.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Memories(ctx context.Context, userID int64) ([]model.Memory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, filename, stored_name, filetype, text, created_at
		 FROM memories WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		var m model.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Filename, &m.StoredName, &m.Filetype, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MemoryByStoredName(ctx context.Context, name string) (*model.Memory, error) {
	m := &model.Memory{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, filename, stored_name, filetype, text, created_at
		 FROM memories WHERE stored_name = $1`, name,
	).Scan(&m.ID, &m.UserID, &m.Filename, &m.StoredName, &m.Filetype, &m.Text, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (s *Store) MemoryCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM memories WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}
