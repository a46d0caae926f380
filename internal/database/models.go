package database

import (
	"time"

	"github.com/neo/battlearena/internal/types"
)

// Battle represents one timed round of the competition
type Battle struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Category        string             `json:"category"`
	Source          string             `json:"source"`
	SourceURL       string             `json:"source_url"`
	SupportPoints   []string           `json:"support_points"`
	OpposePoints    []string           `json:"oppose_points"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	DurationHours   float64            `json:"duration_hours"`
	MaxParticipants int                `json:"max_participants"`
	Status          types.BattleStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// Expired reports whether the submission window has closed at now
func (b *Battle) Expired(now time.Time) bool {
	return !now.Before(b.EndTime)
}

// Remaining returns the time left until the battle ends, never negative
func (b *Battle) Remaining(now time.Time) time.Duration {
	d := b.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// User is a participant with an accumulated points balance
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participation records that a user joined a battle
type Participation struct {
	ID       string    `json:"id"`
	BattleID string    `json:"battle_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Cast is a participant's argument for one side of a battle
type Cast struct {
	ID        string     `json:"id"`
	BattleID  string     `json:"battle_id"`
	UserID    string     `json:"user_id"`
	Side      types.Side `json:"side"`
	Content   string     `json:"content"`
	Likes     int        `json:"likes"`
	CreatedAt time.Time  `json:"created_at"`
}

// WinnerInput is what completion writes for each placed user
type WinnerInput struct {
	UserID   string
	CastID   string
	Position int
	Prize    string
	Reason   string
}

// Winner is a persisted placement on a completed battle
type Winner struct {
	ID        int64     `json:"id"`
	BattleID  string    `json:"battle_id"`
	UserID    string    `json:"user_id"`
	CastID    string    `json:"cast_id,omitempty"`
	Position  int       `json:"position"`
	Prize     string    `json:"prize,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WinnerAward is a ledger entry; applying the same (BattleID, UserID) twice
// is a no-op
type WinnerAward struct {
	BattleID string
	UserID   string
	Points   int
}

// BattleFilter selects battle history pages
type BattleFilter struct {
	Status types.BattleStatus
	Search string
	Offset int
	Limit  int
}
