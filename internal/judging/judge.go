// Package judging picks the winning cast of a finished battle.
package judging

import (
	"context"
	"errors"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/types"
)

// ErrNoCasts is returned when a judge is asked to rank an empty battle
var ErrNoCasts = errors.New("no casts to judge")

// Selection identifies the winning cast
type Selection struct {
	UserID string     `json:"user_id"`
	CastID string     `json:"cast_id"`
	Side   types.Side `json:"side"`
	Reason string     `json:"reason"`
}

// Result is a verdict. A nil Winner means nobody won.
type Result struct {
	Winner *Selection `json:"winner,omitempty"`
}

// Judge ranks the casts of a battle
type Judge interface {
	Judge(ctx context.Context, battle *database.Battle, casts []*database.Cast) (*Result, error)
}

// selectionFor builds a Selection for cast, or nil if cast is nil
func selectionFor(cast *database.Cast, reason string) *Selection {
	if cast == nil {
		return nil
	}
	return &Selection{
		UserID: cast.UserID,
		CastID: cast.ID,
		Side:   cast.Side,
		Reason: reason,
	}
}

func findCast(casts []*database.Cast, id string) *database.Cast {
	for _, c := range casts {
		if c.ID == id {
			return c
		}
	}
	return nil
}
