// Package verify checks claimed solves against the external judge. A claim
// names a submission id, the verifier confirms that submission exists, was
// authored by the claiming player's linked handle, targets the right problem,
// was made after the match started and was accepted.
package verify

import (
	"context"
	"log/slog"
	"time"

	"codeduel/internal/judge"
	"codeduel/internal/match"
	"codeduel/internal/util/timeutil"
)

// DB is the slice of the match store the verifier reads.
type DB interface {
	GetMatch(ctx context.Context, matchID string) (*match.Match, error)
	GetUser(ctx context.Context, userID string) (*match.User, error)
}

type Options struct {
	// FetchCount is how many recent submissions to scan for the claimed one.
	// Claims older than that are rejected, the player should re-submit.
	FetchCount int `toml:"fetch-count"`
}

func (o *Options) FillDefaults() {
	if o.FetchCount == 0 {
		o.FetchCount = 30
	}
}

type Verifier struct {
	log    *slog.Logger
	db     DB
	client judge.Client
	o      Options
}

var _ match.Verifier = (*Verifier)(nil)

func New(log *slog.Logger, db DB, client judge.Client, o Options) *Verifier {
	o.FillDefaults()
	return &Verifier{log: log, db: db, client: client, o: o}
}

// VerifySolve validates the claim and returns the judge-side acceptance time.
// Transport and judge API failures surface as UpstreamUnavailable, everything
// else is a VerificationFailed with a reason the player can act on.
func (v *Verifier) VerifySolve(ctx context.Context, matchID, userID, problemID string, submissionID int64) (timeutil.UTCTime, error) {
	var zero timeutil.UTCTime

	mt, err := v.db.GetMatch(ctx, matchID)
	if err != nil {
		return zero, err
	}
	var problem *match.Problem
	for i := range mt.Problems {
		if mt.Problems[i].ID == problemID {
			problem = &mt.Problems[i]
			break
		}
	}
	if problem == nil {
		return zero, &match.Error{Code: match.ErrInvalidProblem, Message: "problem does not belong to this match"}
	}
	if mt.Status != match.StatusInProgress || mt.StartTime == nil {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "match is not in progress"}
	}

	// A user who never linked a handle usually has no row at all.
	user, err := v.db.GetUser(ctx, userID)
	if err != nil {
		if match.MatchesError(err, match.ErrNotFound) {
			return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "no judge handle linked to your account"}
		}
		return zero, err
	}
	if user.Handle == "" {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "no judge handle linked to your account"}
	}

	subs, err := v.client.UserStatus(ctx, user.Handle, v.o.FetchCount)
	if err != nil {
		return zero, err
	}

	var sub *judge.Submission
	for i := range subs {
		if subs[i].ID == submissionID {
			sub = &subs[i]
			break
		}
	}
	if sub == nil {
		return zero, &match.Error{
			Code:    match.ErrVerificationFailed,
			Message: "submission not found among your recent submissions",
		}
	}
	if !sub.ByHandle(user.Handle) {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "submission was not authored by your linked handle"}
	}
	if sub.Problem.ContestID != problem.ContestID || sub.Problem.Index != problem.Index {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "submission targets a different problem"}
	}
	solvedAt := timeutil.FromTime(time.Unix(sub.CreationTimeSeconds, 0))
	if solvedAt.Before(*mt.StartTime) {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "submission predates the match start"}
	}
	if sub.Verdict != match.AcceptedVerdict {
		return zero, &match.Error{Code: match.ErrVerificationFailed, Message: "submission was not accepted"}
	}

	v.log.Info("verified solve",
		slog.String("match_id", matchID),
		slog.String("user", userID),
		slog.Int64("submission", submissionID),
	)
	return solvedAt, nil
}
