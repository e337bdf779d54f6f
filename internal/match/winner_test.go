package match

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"codeduel/internal/util/timeutil"
)

func at(sec int) timeutil.UTCTime {
	return timeutil.FromTime(time.Date(2024, 6, 1, 12, 0, sec, 0, time.UTC))
}

func buildMatch(problems int, solves []SolveEvent) *Match {
	opponent := "bob"
	m := &Match{
		ID:         "m",
		CreatorID:  "alice",
		OpponentID: &opponent,
		Status:     StatusInProgress,
		Solves:     solves,
	}
	for i := range problems {
		m.Problems = append(m.Problems, Problem{ID: fmt.Sprintf("p%v", i+1)})
	}
	return m
}

func solve(user, problem string, sec int, submissionID int64) SolveEvent {
	return SolveEvent{
		ID:           fmt.Sprintf("%v-%v-%v", user, problem, submissionID),
		MatchID:      "m",
		ProblemID:    problem,
		UserID:       user,
		SubmissionID: submissionID,
		Verdict:      AcceptedVerdict,
		SolvedAt:     at(sec),
	}
}

func TestResolveWinnerScore(t *testing.T) {
	m := buildMatch(3, []SolveEvent{
		solve("alice", "p1", 10, 1),
		solve("alice", "p2", 20, 2),
		solve("bob", "p3", 15, 3),
	})
	if got := ResolveWinner(m); got != "alice" {
		t.Fatalf("winner = %q, want alice", got)
	}
}

func TestResolveWinnerFirstSolverAttribution(t *testing.T) {
	// Bob solves p1 first, Alice's later solve of the same problem does not
	// count for her.
	m := buildMatch(2, []SolveEvent{
		solve("bob", "p1", 10, 1),
		solve("alice", "p1", 20, 2),
		solve("bob", "p2", 30, 3),
	})
	if got := ResolveWinner(m); got != "bob" {
		t.Fatalf("winner = %q, want bob", got)
	}
}

func TestResolveWinnerTieBreakEarlierLastSolve(t *testing.T) {
	// 2-2 on four problems. Alice's last own solve is at t=40, Bob's at t=50,
	// so Alice finished her set sooner and wins.
	m := buildMatch(4, []SolveEvent{
		solve("alice", "p1", 10, 1),
		solve("alice", "p2", 40, 2),
		solve("bob", "p3", 20, 3),
		solve("bob", "p4", 50, 4),
	})
	if got := ResolveWinner(m); got != "alice" {
		t.Fatalf("winner = %q, want alice", got)
	}
}

func TestResolveWinnerNoSolvesNoWinner(t *testing.T) {
	m := buildMatch(3, nil)
	if got := ResolveWinner(m); got != "" {
		t.Fatalf("winner = %q, want none", got)
	}
}

func TestResolveWinnerIdenticalTimesDraw(t *testing.T) {
	m := buildMatch(2, []SolveEvent{
		solve("alice", "p1", 10, 1),
		solve("bob", "p2", 10, 2),
	})
	if got := ResolveWinner(m); got != "" {
		t.Fatalf("winner = %q, want draw", got)
	}
}

func TestResolveWinnerRejectedVerdictIgnored(t *testing.T) {
	rejected := solve("bob", "p1", 5, 1)
	rejected.Verdict = "WRONG_ANSWER"
	m := buildMatch(1, []SolveEvent{
		rejected,
		solve("alice", "p1", 10, 2),
	})
	if got := ResolveWinner(m); got != "alice" {
		t.Fatalf("winner = %q, want alice", got)
	}
}

func TestResolveWinnerSingleParticipant(t *testing.T) {
	m := buildMatch(1, []SolveEvent{solve("alice", "p1", 10, 1)})
	m.OpponentID = nil
	if got := ResolveWinner(m); got != "alice" {
		t.Fatalf("winner = %q, want alice", got)
	}
	m.Solves = nil
	if got := ResolveWinner(m); got != "" {
		t.Fatalf("winner without solves = %q, want none", got)
	}
}

func TestResolveWinnerOrderIndependent(t *testing.T) {
	solves := []SolveEvent{
		solve("alice", "p1", 10, 1),
		solve("bob", "p1", 10, 2),
		solve("alice", "p2", 25, 3),
		solve("bob", "p3", 25, 4),
		solve("bob", "p2", 30, 5),
	}
	m := buildMatch(3, solves)
	want := ResolveWinner(m)

	rng := rand.New(rand.NewPCG(42, 0))
	for range 50 {
		shuffled := make([]SolveEvent, len(solves))
		copy(shuffled, solves)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		m := buildMatch(3, shuffled)
		if got := ResolveWinner(m); got != want {
			t.Fatalf("winner = %q after shuffle, want %q", got, want)
		}
	}
}
