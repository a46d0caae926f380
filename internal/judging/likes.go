package judging

import (
	"context"
	"fmt"

	"github.com/neo/battlearena/internal/database"
)

// LikesJudge awards the cast with the most community likes. Ties go to the
// earliest cast.
type LikesJudge struct{}

var _ Judge = LikesJudge{}

// Judge implements Judge
func (LikesJudge) Judge(ctx context.Context, battle *database.Battle, casts []*database.Cast) (*Result, error) {
	if len(casts) == 0 {
		return nil, ErrNoCasts
	}

	var best *database.Cast
	for _, c := range casts {
		if best == nil || c.Likes > best.Likes ||
			(c.Likes == best.Likes && c.CreatedAt.Before(best.CreatedAt)) {
			best = c
		}
	}
	return &Result{Winner: selectionFor(best, fmt.Sprintf("most liked cast with %d likes", best.Likes))}, nil
}
