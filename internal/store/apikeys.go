package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sampletrack/internal/errs"
)

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key APIKey) error {
	return s.transact(ctx, func(tx *PostgresStore) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO api_key (id, member, name, hash)
			VALUES ($1, $2, $3, $4)
		`, key.ID, key.Member, key.Name, key.Hash); err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		return tx.appendAudit(ctx, key.Member, "apikey.create", "api_key", key.ID, map[string]any{
			"name": key.Name,
		})
	})
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id string) (APIKey, error) {
	var key APIKey
	err := s.q.QueryRowContext(ctx, `
		SELECT id, member, name, hash, created_at, last_used_at, revoked_at
		FROM api_key WHERE id = $1
	`, id).Scan(&key.ID, &key.Member, &key.Name, &key.Hash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKey{}, &errs.NotFound{Kind: "api key", ID: id}
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	if _, err := s.q.ExecContext(ctx, `
		UPDATE api_key SET last_used_at = $2 WHERE id = $1
	`, id, usedAt); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, actor, id string) error {
	return s.transact(ctx, func(tx *PostgresStore) error {
		res, err := tx.q.ExecContext(ctx, `
			UPDATE api_key SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL
		`, id)
		if err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("revoke api key rows: %w", err)
		}
		if n == 0 {
			return &errs.NotFound{Kind: "api key", ID: id}
		}
		return tx.appendAudit(ctx, actor, "apikey.revoke", "api_key", id, nil)
	})
}

// ListAPIKeys returns a member's keys with the hash blanked.
func (s *PostgresStore) ListAPIKeys(ctx context.Context, member string) ([]APIKey, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member, name, created_at, last_used_at, revoked_at
		FROM api_key WHERE member = $1 ORDER BY created_at
	`, member)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(&key.ID, &key.Member, &key.Name, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
