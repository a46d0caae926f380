package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo/battlearena/internal/types"
)

// CreateParticipation records that userID joined battleID. The count check
// and the insert are one statement, so concurrent joins cannot overshoot
// limit; a full battle returns ErrCapacityReached. limit <= 0 means no cap.
// Joining twice returns ErrDuplicate.
func (d *Database) CreateParticipation(ctx context.Context, battleID, userID string, limit int) (*Participation, error) {
	p := &Participation{
		ID:       uuid.New().String(),
		BattleID: battleID,
		UserID:   userID,
		JoinedAt: d.timestamp(),
	}
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO participations (id, battle_id, user_id, joined_at)
		SELECT ?, ?, ?, ?
		WHERE ? <= 0 OR (SELECT COUNT(*) FROM participations WHERE battle_id = ?) < ?`,
		p.ID, p.BattleID, p.UserID, p.JoinedAt, limit, battleID, limit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create participation: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to create participation: %w", err)
	}
	if inserted == 0 {
		return nil, ErrCapacityReached
	}
	return p, nil
}

// HasParticipation reports whether userID joined battleID
func (d *Database) HasParticipation(ctx context.Context, battleID, userID string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE battle_id = ? AND user_id = ?`,
		battleID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check participation: %w", err)
	}
	return count > 0, nil
}

// CountParticipants returns how many users joined battleID
func (d *Database) CountParticipants(ctx context.Context, battleID string) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE battle_id = ?`, battleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// CreateCast stores a submission. One cast per (battle, user); a second one
// returns ErrDuplicate.
func (d *Database) CreateCast(ctx context.Context, cast *Cast) error {
	if cast.ID == "" {
		cast.ID = uuid.New().String()
	}
	if cast.CreatedAt.IsZero() {
		cast.CreatedAt = d.timestamp()
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO casts (id, battle_id, user_id, side, content, likes, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		cast.ID, cast.BattleID, cast.UserID, string(cast.Side), cast.Content, cast.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create cast: %w", err)
	}
	return nil
}

// GetCastsForBattle returns the casts of a battle, oldest first
func (d *Database) GetCastsForBattle(ctx context.Context, battleID string) ([]*Cast, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, battle_id, user_id, side, content, likes, created_at
		FROM casts WHERE battle_id = ? ORDER BY created_at ASC, id ASC`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query casts: %w", err)
	}
	defer rows.Close()

	casts := []*Cast{}
	for rows.Next() {
		var c Cast
		var side string
		if err := rows.Scan(&c.ID, &c.BattleID, &c.UserID, &side, &c.Content, &c.Likes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cast: %w", err)
		}
		c.Side = types.Side(side)
		casts = append(casts, &c)
	}
	return casts, rows.Err()
}

// LikeCast records a like from userID and returns the new like count
func (d *Database) LikeCast(ctx context.Context, castID, userID string) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM casts WHERE id = ?`, castID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check cast: %w", err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO cast_likes (cast_id, user_id, created_at) VALUES (?, ?, ?)`,
		castID, userID, d.timestamp()); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to like cast: %w", err)
	}

	var likes int
	if err := tx.QueryRowContext(ctx, `UPDATE casts SET likes = likes + 1 WHERE id = ? RETURNING likes`, castID).Scan(&likes); err != nil {
		return 0, fmt.Errorf("failed to update likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return likes, nil
}
