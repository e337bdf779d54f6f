package match

import (
	"codeduel/internal/util/timeutil"
)

// ResolveWinner computes the outcome of a match from its full accepted solve
// set. It is deterministic and order-independent, and it is the single place
// where a winner is ever decided: both the deadline-expiry path and the
// early-finish path converge here with the same event set.
//
// Each problem is attributed to the participant who solved it first. The
// participant with strictly more attributed problems wins. On equal nonzero
// scores, the participant whose own latest accepted solve is earlier wins
// (they finished their set sooner); a side with no solves cannot win the
// tie-break. If neither side solved anything, there is no winner.
//
// Returns the winner's user ID, or "" for a draw / no-solve outcome.
func ResolveWinner(m *Match) string {
	accepted := make([]*SolveEvent, 0, len(m.Solves))
	for i := range m.Solves {
		if m.Solves[i].Verdict == AcceptedVerdict {
			accepted = append(accepted, &m.Solves[i])
		}
	}

	if m.OpponentID == nil {
		// A match without an opponent must not reach IN_PROGRESS, but if it
		// somehow did, the sole participant wins by solving anything.
		if len(accepted) != 0 {
			return m.CreatorID
		}
		return ""
	}
	opponentID := *m.OpponentID

	firstSolver := make(map[string]*SolveEvent, len(m.Problems))
	for _, s := range accepted {
		cur, ok := firstSolver[s.ProblemID]
		if !ok || solveBefore(s, cur) {
			firstSolver[s.ProblemID] = s
		}
	}

	scores := make(map[string]int, 2)
	for i := range m.Problems {
		if s, ok := firstSolver[m.Problems[i].ID]; ok {
			scores[s.UserID]++
		}
	}

	creatorScore, opponentScore := scores[m.CreatorID], scores[opponentID]
	switch {
	case creatorScore > opponentScore:
		return m.CreatorID
	case opponentScore > creatorScore:
		return opponentID
	case creatorScore == 0:
		return ""
	}

	creatorLast, creatorOk := lastSolveTime(accepted, m.CreatorID)
	opponentLast, opponentOk := lastSolveTime(accepted, opponentID)
	switch {
	case creatorOk && !opponentOk:
		return m.CreatorID
	case opponentOk && !creatorOk:
		return opponentID
	case !creatorOk && !opponentOk:
		return ""
	}
	if cmp := creatorLast.Compare(opponentLast); cmp < 0 {
		return m.CreatorID
	} else if cmp > 0 {
		return opponentID
	}
	return ""
}

// solveBefore orders accepted solves by time, breaking exact ties on the
// external submission id and then the user id, so that attribution does not
// depend on the order events are stored in.
func solveBefore(a, b *SolveEvent) bool {
	if cmp := a.SolvedAt.Compare(b.SolvedAt); cmp != 0 {
		return cmp < 0
	}
	if a.SubmissionID != b.SubmissionID {
		return a.SubmissionID < b.SubmissionID
	}
	return a.UserID < b.UserID
}

func lastSolveTime(accepted []*SolveEvent, userID string) (timeutil.UTCTime, bool) {
	var (
		last  timeutil.UTCTime
		found bool
	)
	for _, s := range accepted {
		if s.UserID != userID {
			continue
		}
		if !found || last.Before(s.SolvedAt) {
			last = s.SolvedAt
			found = true
		}
	}
	return last, found
}
