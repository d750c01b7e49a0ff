package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type idempotencyStore struct {
	q querier
}

// Claim row-locks the idempotency key, inserting it when first seen. A
// replay returns the response stored by the request that finalized the
// key; a concurrent duplicate blocks on the lock until the first request
// commits and then sees its stored response.
func (s idempotencyStore) Claim(ctx context.Context, workspaceID, key string) ([]byte, bool, error) {
	stored, found, err := s.selectForUpdate(ctx, workspaceID, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return stored, len(stored) > 0, nil
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (workspace_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, idempotency_key) DO NOTHING
	`, workspaceID, key)
	if err != nil {
		return nil, false, err
	}

	stored, _, err = s.selectForUpdate(ctx, workspaceID, key)
	if err != nil {
		return nil, false, err
	}
	return stored, len(stored) > 0, nil
}

func (s idempotencyStore) Finalize(ctx context.Context, workspaceID, key string, response []byte) error {
	_, err := s.q.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET response_payload = $3,
			updated_at = now()
		WHERE workspace_id = $1 AND idempotency_key = $2
	`, workspaceID, key, response)
	return err
}

func (s idempotencyStore) selectForUpdate(ctx context.Context, workspaceID, key string) ([]byte, bool, error) {
	var response string
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE workspace_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, workspaceID, key).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if response == "" {
		return nil, true, nil
	}
	return []byte(response), true, nil
}
