package store

import (
	"context"

	"grandbridge/internal/model"
)

func (s *Store) CreateMessage(ctx context.Context, m *model.ChatMessage) error {
	return s.pool.QueryRow(ctx,
		`WITH ins AS (
			INSERT INTO chat_messages (event_id, user_id, content) VALUES ($1,$2,$3)
			RETURNING id, user_id, created_at
		 )
		 SELECT ins.id, ins.created_at, u.username FROM ins JOIN users u ON u.id = ins.user_id`,
		m.EventID, m.UserID, m.Content,
	).Scan(&m.ID, &m.CreatedAt, &m.Username)
}

func (s *Store) listMessages(ctx context.Context, q string, args ...any) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Username, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentMessages returns the last limit messages of an event, oldest first.
func (s *Store) RecentMessages(ctx context.Context, eventID int64, limit int) ([]model.ChatMessage, error) {
	return s.listMessages(ctx,
		`SELECT * FROM (
			SELECT m.id, m.event_id, m.user_id, u.username, m.content, m.created_at
			FROM chat_messages m JOIN users u ON u.id = m.user_id
			WHERE m.event_id = $1 ORDER BY m.id DESC LIMIT $2
		 ) recent ORDER BY id`, eventID, limit)
}

// MessagesAfter returns messages newer than lastID, oldest first.
func (s *Store) MessagesAfter(ctx context.Context, eventID, lastID int64) ([]model.ChatMessage, error) {
	return s.listMessages(ctx,
		`SELECT m.id, m.event_id, m.user_id, u.username, m.content, m.created_at
		 FROM chat_messages m JOIN users u ON u.id = m.user_id
		 WHERE m.event_id = $1 AND m.id > $2 ORDER BY m.id`, eventID, lastID)
}
