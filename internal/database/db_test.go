package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"codeduel/internal/match"
	"codeduel/internal/util/idgen"
	"codeduel/internal/util/slogx"
	"codeduel/internal/util/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(slogx.DiscardLogger(), Options{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func newWaitingMatch(creatorID string) *match.Match {
	return &match.Match{
		ID:            idgen.ID(),
		Code:          idgen.JoinCode(),
		Name:          "test-match",
		DifficultyMin: 800,
		DifficultyMax: 1200,
		ProblemCount:  2,
		Duration:      30 * time.Minute,
		Status:        match.StatusWaiting,
		CreatorID:     creatorID,
		CreatedAt:     timeutil.NowUTC(),
	}
}

func TestMatchRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	m := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, m); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	got, err := d.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Code != m.Code || got.CreatorID != "alice" || got.Status != match.StatusWaiting {
		t.Fatalf("unexpected match: %+v", got)
	}

	byCode, err := d.GetMatchByCode(ctx, m.Code)
	if err != nil {
		t.Fatalf("GetMatchByCode: %v", err)
	}
	if byCode.ID != m.ID {
		t.Fatalf("code resolved to %q, want %q", byCode.ID, m.ID)
	}

	_, err = d.GetMatch(ctx, "no-such-id")
	if !match.MatchesError(err, match.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCreateMatchCodeCollision(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	m1 := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, m1); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	m2 := newWaitingMatch("bob")
	m2.Code = m1.Code
	if err := d.CreateMatch(ctx, m2); !errors.Is(err, match.ErrCodeTaken) {
		t.Fatalf("err = %v, want ErrCodeTaken", err)
	}
}

func TestSetOpponentOnce(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	m := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, m); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := d.SetOpponent(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("SetOpponent: %v", err)
	}
	err := d.SetOpponent(ctx, m.ID, "carol")
	if !match.MatchesError(err, match.ErrInvalidState) {
		t.Fatalf("second SetOpponent err = %v, want invalid state", err)
	}

	got, err := d.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.OpponentID == nil || *got.OpponentID != "bob" {
		t.Fatalf("opponent = %v, want bob", got.OpponentID)
	}
}

func TestBeginAndFinishTransitions(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	m := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, m); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	start := timeutil.NowUTC()
	if err := d.BeginMatch(ctx, m.ID, start); err != nil {
		t.Fatalf("BeginMatch: %v", err)
	}
	err := d.BeginMatch(ctx, m.ID, start)
	if !match.MatchesError(err, match.ErrInvalidState) {
		t.Fatalf("second BeginMatch err = %v, want invalid state", err)
	}

	got, err := d.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Status != match.StatusInProgress || got.StartTime == nil {
		t.Fatalf("unexpected match after begin: %+v", got)
	}

	winner := "alice"
	end := start.Add(30 * time.Minute)
	if err := d.FinishMatch(ctx, m.ID, end, &winner); err != nil {
		t.Fatalf("FinishMatch: %v", err)
	}
	err = d.FinishMatch(ctx, m.ID, end, nil)
	if !match.MatchesError(err, match.ErrInvalidState) {
		t.Fatalf("second FinishMatch err = %v, want invalid state", err)
	}

	got, err = d.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Status != match.StatusFinished || got.WinnerID == nil || *got.WinnerID != "alice" {
		t.Fatalf("unexpected match after finish: %+v", got)
	}
}

func TestProblemsAndSolves(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	m := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, m); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	problems := []match.Problem{
		{ID: idgen.ID(), MatchID: m.ID, ContestID: 1000, Index: "A", Title: "First", Rating: 900},
		{ID: idgen.ID(), MatchID: m.ID, ContestID: 1000, Index: "B", Title: "Second", Rating: 1100},
	}
	if err := d.CreateProblems(ctx, problems); err != nil {
		t.Fatalf("CreateProblems: %v", err)
	}
	if err := d.BeginMatch(ctx, m.ID, timeutil.NowUTC()); err != nil {
		t.Fatalf("BeginMatch: %v", err)
	}

	event := &match.SolveEvent{
		ID:           idgen.ID(),
		MatchID:      m.ID,
		ProblemID:    problems[0].ID,
		UserID:       "alice",
		SubmissionID: 1234,
		Verdict:      match.AcceptedVerdict,
		SolvedAt:     timeutil.NowUTC(),
	}
	if err := d.CreateSolveEvent(ctx, event); err != nil {
		t.Fatalf("CreateSolveEvent: %v", err)
	}

	dup := *event
	dup.ID = idgen.ID()
	dup.SubmissionID = 5678
	err := d.CreateSolveEvent(ctx, &dup)
	if !match.MatchesError(err, match.ErrAlreadySolved) {
		t.Fatalf("duplicate solve err = %v, want already solved", err)
	}

	got, err := d.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if len(got.Problems) != 2 || len(got.Solves) != 1 {
		t.Fatalf("got %v problems and %v solves, want 2 and 1", len(got.Problems), len(got.Solves))
	}
}

func TestListMatches(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	first := newWaitingMatch("alice")
	if err := d.CreateMatch(ctx, first); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	second := newWaitingMatch("bob")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	if err := d.CreateMatch(ctx, second); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := d.SetOpponent(ctx, second.ID, "alice"); err != nil {
		t.Fatalf("SetOpponent: %v", err)
	}
	if err := d.BeginMatch(ctx, second.ID, timeutil.NowUTC()); err != nil {
		t.Fatalf("BeginMatch: %v", err)
	}

	mine, err := d.ListUserMatches(ctx, "alice")
	if err != nil {
		t.Fatalf("ListUserMatches: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("got %v matches, want 2", len(mine))
	}
	if mine[0].ID != second.ID {
		t.Fatalf("matches are not newest first: %v", mine[0].ID)
	}

	running, err := d.ListMatchesInStatus(ctx, match.StatusInProgress)
	if err != nil {
		t.Fatalf("ListMatchesInStatus: %v", err)
	}
	if len(running) != 1 || running[0].ID != second.ID {
		t.Fatalf("unexpected running matches: %+v", running)
	}
}

func TestUsers(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.GetUser(ctx, "alice")
	if !match.MatchesError(err, match.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	if err := d.SaveUser(ctx, &match.User{ID: "alice", Handle: "alice_cf"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := d.SaveUser(ctx, &match.User{ID: "alice", Handle: "renamed"}); err != nil {
		t.Fatalf("SaveUser again: %v", err)
	}

	user, err := d.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Handle != "renamed" {
		t.Fatalf("handle = %q, want renamed", user.Handle)
	}
}
