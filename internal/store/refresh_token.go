package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RefreshToken struct {
	ID         string
	UserID     int64
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
	// ReplacedAt is when the replacement was issued; ReplacementLive is false
	// once the replacement was revoked without being rotated (logout, theft).
	ReplacedAt      *time.Time
	ReplacementLive bool
}

// Usable reports whether the token can still be exchanged.
func (rt *RefreshToken) Usable(now time.Time) bool {
	return !rt.Revoked && now.Before(rt.ExpiresAt)
}

// RecentlyRotated reports whether the token was exchanged less than window ago
// and its replacement is still in use.
func (rt *RefreshToken) RecentlyRotated(now time.Time, window time.Duration) bool {
	return rt.Revoked && rt.ReplacedAt != nil && rt.ReplacementLive &&
		now.Sub(*rt.ReplacedAt) < window && now.Before(rt.ExpiresAt)
}

func (s *Store) CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
		id, userID, tokenHash, expiresAt,
	)
	return id, err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	rt := &RefreshToken{}
	err := s.pool.QueryRow(ctx,
		`SELECT r.id::text, r.user_id, r.token_hash, r.expires_at, r.revoked, r.replaced_by::text, r.created_at,
		        n.created_at, COALESCE(NOT n.revoked OR n.replaced_by IS NOT NULL, false)
		 FROM refresh_tokens r
		 LEFT JOIN refresh_tokens n ON n.id = r.replaced_by
		 WHERE r.token_hash = $1`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.ReplacedBy, &rt.CreatedAt,
		&rt.ReplacedAt, &rt.ReplacementLive)
	if err != nil {
		return nil, notFound(err)
	}
	return rt, nil
}

// rotate: revoke old token, create new one, link them
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, userID int64, newHash string, newExpiry time.Time) (string, error) {
	newID := uuid.New().String()
	err := s.tx(ctx, func(tx pgx.Tx) error {
		// revoke old, point to replacement; a concurrent rotation loses here
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = true, replaced_by = $1 WHERE id = $2 AND NOT revoked`,
			newID, oldID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
			newID, userID, newHash, newExpiry,
		)
		return err
	})
	return newID, err
}

// revoke all tokens for a user (on logout or suspected theft)
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`,
		userID,
	)
	return err
}

func (s *Store) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	return tag.RowsAffected(), err
}
