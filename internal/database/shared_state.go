package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const cooldownKey = "topic_cooldown_until"

// GetCooldown returns the shared topic-generation cooldown, or nil if unset
func (d *Database) GetCooldown(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	err := d.db.QueryRowContext(ctx, `SELECT value FROM shared_state WHERE key = ?`, cooldownKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown: %w", err)
	}

	until, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cooldown %q: %w", raw.String, err)
	}
	return &until, nil
}

// SetCooldown stores the cooldown instant. Last write wins.
func (d *Database) SetCooldown(ctx context.Context, until time.Time) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO shared_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		cooldownKey, until.UTC().Format(time.RFC3339Nano), d.timestamp())
	if err != nil {
		return fmt.Errorf("failed to write cooldown: %w", err)
	}
	return nil
}
