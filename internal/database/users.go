package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertUser creates the user or refreshes its username, returning the row
func (d *Database) UpsertUser(ctx context.Context, id, username string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if username == "" {
		username = id
	}

	now := d.timestamp()
	_, err := d.db.ExecContext(ctx, `INSERT INTO users (id, username, points, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, updated_at = excluded.updated_at`,
		id, username, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return d.GetUser(ctx, id)
}

// GetUser returns a user by id or ErrNotFound
func (d *Database) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := d.db.QueryRowContext(ctx, `SELECT id, username, points, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Points, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// AwardPoints applies a ledger entry. The balance only moves when the
// (battle, user) entry is new, so replaying a completion is harmless.
func (d *Database) AwardPoints(ctx context.Context, award WinnerAward) (bool, int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO points_ledger (battle_id, user_id, points, awarded_at)
		VALUES (?, ?, ?, ?)`, award.BattleID, award.UserID, award.Points, d.timestamp())
	if err != nil {
		return false, 0, fmt.Errorf("failed to write ledger entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if inserted == 1 {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?`,
			award.Points, d.timestamp(), award.UserID); err != nil {
			return false, 0, fmt.Errorf("failed to update points: %w", err)
		}
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, award.UserID).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, ErrNotFound
		}
		return false, 0, fmt.Errorf("failed to read points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted == 1, total, nil
}

// Leaderboard returns users ordered by points
func (d *Database) Leaderboard(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.db.QueryContext(ctx, `SELECT id, username, points, created_at, updated_at FROM users
		WHERE points > 0 ORDER BY points DESC, updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Points, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
