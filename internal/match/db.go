package match

import (
	"context"
	"errors"

	"codeduel/internal/util/timeutil"
)

// ErrCodeTaken is returned by DB.CreateMatch when the generated join code
// collides with an existing match. The caller regenerates and retries.
var ErrCodeTaken = errors.New("join code already taken")

// DB is the durable match store. Matches are always read fresh from the
// store at each decision point, the orchestrator keeps no long-lived copy of
// match state beyond timers and room membership.
type DB interface {
	// CreateMatch persists a new match. Returns ErrCodeTaken on a join code
	// collision.
	CreateMatch(ctx context.Context, m *Match) error
	// GetMatch returns the match with its problems and solve events.
	GetMatch(ctx context.Context, matchID string) (*Match, error)
	// GetMatchByCode resolves a join code. Codes are unique across matches.
	GetMatchByCode(ctx context.Context, code string) (*Match, error)
	// ListUserMatches returns matches the user participates in, most recent
	// first.
	ListUserMatches(ctx context.Context, userID string) ([]Match, error)
	// ListMatchesInStatus returns all matches currently in the given status.
	ListMatchesInStatus(ctx context.Context, status Status) ([]Match, error)
	// SetOpponent binds an opponent to a waiting match. Fails if the match
	// has left WAITING or already has an opponent.
	SetOpponent(ctx context.Context, matchID string, userID string) error
	// CreateProblems persists the problem batch for a match.
	CreateProblems(ctx context.Context, problems []Problem) error
	// BeginMatch atomically stamps the start time and moves WAITING to
	// IN_PROGRESS.
	BeginMatch(ctx context.Context, matchID string, startTime timeutil.UTCTime) error
	// FinishMatch atomically stamps the end time, the winner and moves
	// IN_PROGRESS to FINISHED.
	FinishMatch(ctx context.Context, matchID string, endTime timeutil.UTCTime, winnerID *string) error
	// CreateSolveEvent appends a solve event. A second accepted event for the
	// same (user, problem) is rejected, not overwritten.
	CreateSolveEvent(ctx context.Context, event *SolveEvent) error
	// GetUser returns the user with their linked judge handle.
	GetUser(ctx context.Context, userID string) (*User, error)
	// SaveUser creates or updates a user record.
	SaveUser(ctx context.Context, user *User) error
}
