package store

import (
	"context"

	"grandbridge/internal/model"
)

func (s *Store) CreateStaff(ctx context.Context, m *model.Staff) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO staff (name, organisation, tel, email, intro) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		m.Name, m.Organisation, m.Tel, m.Email, m.Intro,
	).Scan(&m.ID)
}

func (s *Store) StaffList(ctx context.Context) ([]model.Staff, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, organisation, tel, email, intro FROM staff ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var m model.Staff
		if err := rows.Scan(&m.ID, &m.Name, &m.Organisation, &m.Tel, &m.Email, &m.Intro); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
