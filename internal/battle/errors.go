package battle

import "errors"

// Domain errors returned to callers of the user-facing operations. The API
// layer maps them to responses; the orchestrator never retries them.
var (
	ErrNoActiveBattle   = errors.New("no active battle")
	ErrAlreadyJoined    = errors.New("already joined this battle")
	ErrBattleFull       = errors.New("battle is full")
	ErrMustJoin         = errors.New("must join the battle before submitting")
	ErrAlreadySubmitted = errors.New("already submitted a cast for this battle")
	ErrInvalidSide      = errors.New("side must be SUPPORT or OPPOSE")
	ErrEmptyContent     = errors.New("cast content is required")
	ErrContentTooLong   = errors.New("cast content is too long")
	ErrInvalidUser      = errors.New("user id is required")
)

// Outcomes of a creation attempt. Reconciliation logs and swallows these;
// TriggerBattleGeneration returns them.
var (
	ErrCoolingDown          = errors.New("topic generation is cooling down after a rate limit")
	ErrGenerationInProgress = errors.New("battle generation already in progress")
	ErrBattleInProgress     = errors.New("a battle is already active")
	ErrNoTopic              = errors.New("no topic available")
)
