package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/types"
)

const battleColumns = `id, title, description, category, source, source_url,
	support_points, oppose_points, start_time, end_time, duration_hours,
	max_participants, status, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBattle(row rowScanner) (*Battle, error) {
	var b Battle
	var support, oppose, status string
	var completedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.Title, &b.Description, &b.Category, &b.Source, &b.SourceURL,
		&support, &oppose, &b.StartTime, &b.EndTime, &b.DurationHours,
		&b.MaxParticipants, &status, &b.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	b.SupportPoints = decodePoints(support)
	b.OpposePoints = decodePoints(oppose)
	b.Status = types.BattleStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

// CreateBattle inserts a new ACTIVE battle. A concurrent insert that would
// produce a second ACTIVE row fails with ErrActiveBattleExists.
func (d *Database) CreateBattle(ctx context.Context, battle *Battle) error {
	if battle.Status == "" {
		battle.Status = types.BattleStatusActive
	}
	if !battle.EndTime.After(battle.StartTime) {
		return fmt.Errorf("battle end time %s must be after start time %s", battle.EndTime, battle.StartTime)
	}
	if battle.CreatedAt.IsZero() {
		battle.CreatedAt = d.timestamp()
	}

	support, err := encodePoints(battle.SupportPoints)
	if err != nil {
		return fmt.Errorf("failed to encode support points: %w", err)
	}
	oppose, err := encodePoints(battle.OpposePoints)
	if err != nil {
		return fmt.Errorf("failed to encode oppose points: %w", err)
	}

	query := `INSERT INTO battles (` + battleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`
	_, err = d.db.ExecContext(ctx, query,
		battle.ID, battle.Title, battle.Description, battle.Category, battle.Source, battle.SourceURL,
		support, oppose, battle.StartTime.UTC(), battle.EndTime.UTC(), battle.DurationHours,
		battle.MaxParticipants, string(battle.Status), battle.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveBattleExists
		}
		return fmt.Errorf("failed to create battle: %w", err)
	}

	logging.LogDatabaseEvent("insert", "battles", map[string]interface{}{
		"battle_id": battle.ID,
		"status":    battle.Status,
	})
	return nil
}

// GetBattle returns a battle by id or ErrNotFound
func (d *Database) GetBattle(ctx context.Context, id string) (*Battle, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = ?`, id)
	battle, err := scanBattle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get battle: %w", err)
	}
	return battle, nil
}

// GetCurrentBattle returns the ACTIVE battle, or nil when there is none
func (d *Database) GetCurrentBattle(ctx context.Context) (*Battle, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles
		WHERE status = ? ORDER BY created_at DESC LIMIT 1`, string(types.BattleStatusActive))
	battle, err := scanBattle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current battle: %w", err)
	}
	return battle, nil
}

// ListExpiredActiveBattles returns ACTIVE battles whose end time is at or
// before now
func (d *Database) ListExpiredActiveBattles(ctx context.Context, now time.Time) ([]*Battle, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+battleColumns+` FROM battles
		WHERE status = ? ORDER BY end_time ASC`, string(types.BattleStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active battles: %w", err)
	}
	defer rows.Close()

	var expired []*Battle
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		// Compared in Go: sqlite would compare the stored text, not instants.
		if battle.Expired(now) {
			expired = append(expired, battle)
		}
	}
	return expired, rows.Err()
}

// ListBattles returns a page of battle history plus the total match count
func (d *Database) ListBattles(ctx context.Context, filter BattleFilter) ([]*Battle, int, error) {
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		args = append(args, "%"+s+"%", "%"+s+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM battles`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count battles: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + battleColumns + ` FROM battles` + clause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := d.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list battles: %w", err)
	}
	defer rows.Close()

	battles := make([]*Battle, 0, limit)
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan battle: %w", err)
		}
		battles = append(battles, battle)
	}
	return battles, total, rows.Err()
}

// RecentTopicTitles returns the titles of the most recently created battles
func (d *Database) RecentTopicTitles(ctx context.Context, limit int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT title FROM battles ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// CompleteBattle flips an ACTIVE battle to COMPLETED and records its winners
// in one transaction. Only the first caller succeeds; later callers get
// ErrBattleNotActive.
func (d *Database) CompleteBattle(ctx context.Context, id string, winners []WinnerInput) (*Battle, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE battles SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(types.BattleStatusCompleted), d.timestamp(), id, string(types.BattleStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to complete battle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM battles WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check battle: %w", err)
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrBattleNotActive
	}

	for _, w := range winners {
		var castID, prize interface{}
		if w.CastID != "" {
			castID = w.CastID
		}
		if w.Prize != "" {
			prize = w.Prize
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO winners (battle_id, user_id, cast_id, position, prize, reason)
			VALUES (?, ?, ?, ?, ?, ?)`, id, w.UserID, castID, w.Position, prize, w.Reason)
		if err != nil {
			return nil, fmt.Errorf("failed to record winner: %w", err)
		}
	}

	battle, err := scanBattle(tx.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload battle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.LogDatabaseEvent("complete", "battles", map[string]interface{}{
		"battle_id": id,
		"winners":   len(winners),
	})
	return battle, nil
}

// GetWinners returns the placements of a battle ordered by position
func (d *Database) GetWinners(ctx context.Context, battleID string) ([]*Winner, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, battle_id, user_id, cast_id, position, prize, reason, created_at
		FROM winners WHERE battle_id = ? ORDER BY position ASC`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	winners := []*Winner{}
	for rows.Next() {
		var w Winner
		var castID, prize sql.NullString
		if err := rows.Scan(&w.ID, &w.BattleID, &w.UserID, &castID, &w.Position, &prize, &w.Reason, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		w.CastID = castID.String
		w.Prize = prize.String
		winners = append(winners, &w)
	}
	return winners, rows.Err()
}
