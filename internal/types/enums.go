package types

import (
	"fmt"
	"strings"
)

// BattleStatus is the persisted lifecycle state of a battle
type BattleStatus string

const (
	BattleStatusActive    BattleStatus = "ACTIVE"    // Accepting participants and casts
	BattleStatusCompleted BattleStatus = "COMPLETED" // Judged and closed, immutable except winners
)

// Side is the position a cast argues for
type Side string

const (
	SideSupport Side = "SUPPORT"
	SideOppose  Side = "OPPOSE"
)

// EventType identifies a lifecycle event pushed to live subscribers
type EventType string

const (
	EventBattleStarted     EventType = "BATTLE_STARTED"
	EventBattleEnded       EventType = "BATTLE_ENDED"
	EventStatusUpdate      EventType = "STATUS_UPDATE"
	EventLeaderboardUpdate EventType = "LEADERBOARD_UPDATE"
)

// StatusType classifies a human readable status update
type StatusType string

const (
	StatusInfo    StatusType = "info"
	StatusSuccess StatusType = "success"
	StatusWarning StatusType = "warning"
	StatusError   StatusType = "error"
)

var (
	// AllSides contains all valid cast sides
	AllSides = []Side{SideSupport, SideOppose}

	battleStatusMap = map[string]BattleStatus{
		string(BattleStatusActive):    BattleStatusActive,
		string(BattleStatusCompleted): BattleStatusCompleted,
	}

	sideMap = map[string]Side{
		string(SideSupport): SideSupport,
		string(SideOppose):  SideOppose,
	}
)

// Error types for invalid values
var (
	ErrInvalidBattleStatus = fmt.Errorf("invalid battle status")
	ErrInvalidSide         = fmt.Errorf("invalid side")
)

// IsValid checks if the BattleStatus is valid
func (s BattleStatus) IsValid() bool {
	_, ok := battleStatusMap[string(s)]
	return ok
}

func (s BattleStatus) String() string {
	return string(s)
}

// ParseBattleStatus parses a string into a BattleStatus
func ParseBattleStatus(s string) (BattleStatus, error) {
	if status, ok := battleStatusMap[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidBattleStatus, s)
}

// IsValid checks if the Side is valid
func (s Side) IsValid() bool {
	_, ok := sideMap[string(s)]
	return ok
}

func (s Side) String() string {
	return string(s)
}

// ParseSide parses a string into a Side. Matching is case-insensitive so
// clients may send "support" or "SUPPORT".
func ParseSide(s string) (Side, error) {
	if side, ok := sideMap[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return side, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidSide, s)
}

// Opposite returns the other side of the debate
func (s Side) Opposite() Side {
	if s == SideSupport {
		return SideOppose
	}
	return SideSupport
}

func (e EventType) String() string {
	return string(e)
}
