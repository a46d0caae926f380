package events

import (
	"time"

	"github.com/neo/battlearena/internal/types"
)

// BattleStarted is the payload of a BATTLE_STARTED event
type BattleStarted struct {
	BattleID    string    `json:"battleId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"sourceUrl"`
	EndTime     time.Time `json:"endTime"`
}

// BattleEnded is the payload of a BATTLE_ENDED event
type BattleEnded struct {
	BattleID string `json:"battleId"`
	Title    string `json:"title"`
	Reason   string `json:"reason,omitempty"`
}

// StatusUpdate is a human-readable progress message
type StatusUpdate struct {
	Message string           `json:"message"`
	Type    types.StatusType `json:"type"`
}

// LeaderboardUpdate announces a winner's new points balance
type LeaderboardUpdate struct {
	Winner         string `json:"winner"`
	NewTotalPoints int    `json:"newTotalPoints"`
}
