package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrActiveBattleExists is returned when inserting a battle would create a
	// second ACTIVE row
	ErrActiveBattleExists = errors.New("an active battle already exists")
	// ErrBattleNotActive is returned when a conditional completion matched no
	// ACTIVE battle
	ErrBattleNotActive = errors.New("battle is not active")
	// ErrDuplicate is returned when a unique pair (participation, cast, like)
	// already exists
	ErrDuplicate = errors.New("duplicate record")
	// ErrCapacityReached is returned when a battle already has its maximum
	// number of participants
	ErrCapacityReached = errors.New("participant limit reached")
)

// DatabaseInterface is the persistence contract the battle orchestrator and
// the HTTP layer depend on
type DatabaseInterface interface {
	Close() error
	RunMigrations() error

	// Battles
	CreateBattle(ctx context.Context, battle *Battle) error
	GetBattle(ctx context.Context, id string) (*Battle, error)
	GetCurrentBattle(ctx context.Context) (*Battle, error)
	ListExpiredActiveBattles(ctx context.Context, now time.Time) ([]*Battle, error)
	ListBattles(ctx context.Context, filter BattleFilter) ([]*Battle, int, error)
	RecentTopicTitles(ctx context.Context, limit int) ([]string, error)
	CompleteBattle(ctx context.Context, id string, winners []WinnerInput) (*Battle, error)
	GetWinners(ctx context.Context, battleID string) ([]*Winner, error)

	// Users and points
	UpsertUser(ctx context.Context, id, username string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AwardPoints(ctx context.Context, award WinnerAward) (applied bool, newTotal int, err error)
	Leaderboard(ctx context.Context, limit int) ([]*User, error)

	// Participation and casts
	CreateParticipation(ctx context.Context, battleID, userID string, limit int) (*Participation, error)
	HasParticipation(ctx context.Context, battleID, userID string) (bool, error)
	CountParticipants(ctx context.Context, battleID string) (int, error)
	CreateCast(ctx context.Context, cast *Cast) error
	GetCastsForBattle(ctx context.Context, battleID string) ([]*Cast, error)
	LikeCast(ctx context.Context, castID, userID string) (int, error)

	// Shared state
	GetCooldown(ctx context.Context) (*time.Time, error)
	SetCooldown(ctx context.Context, until time.Time) error
}

// Ensure Database implements DatabaseInterface
var _ DatabaseInterface = (*Database)(nil)
