package broadcast

import "time"

type EventKind string

const (
	KindStarted EventKind = "started"
	KindTick    EventKind = "tick"
	KindSolved  EventKind = "solved"
	KindEnded   EventKind = "ended"
)

// Event is a state change fanned out to the subscribers of a match. Delivery
// is best-effort, clients reconcile through a snapshot fetch after
// reconnecting.
type Event struct {
	Kind    EventKind `json:"kind"`
	MatchID string    `json:"matchId"`
	// ServerTime lets clients correct for clock skew, the server clock is
	// authoritative.
	ServerTime time.Time `json:"serverTime"`

	// TimeLeft is set for "started" and "tick", in whole seconds.
	TimeLeft *int64 `json:"timeLeft,omitempty"`

	// Set for "solved".
	UserID    string     `json:"userId,omitempty"`
	ProblemID string     `json:"problemId,omitempty"`
	SolvedAt  *time.Time `json:"solvedAt,omitempty"`

	// Set for "ended". WinnerID stays empty on a draw.
	WinnerID string     `json:"winnerId,omitempty"`
	EndedAt  *time.Time `json:"endedAt,omitempty"`
}

func Started(matchID string, timeLeft int64, serverTime time.Time) Event {
	return Event{
		Kind:       KindStarted,
		MatchID:    matchID,
		ServerTime: serverTime,
		TimeLeft:   &timeLeft,
	}
}

func Tick(matchID string, timeLeft int64, serverTime time.Time) Event {
	return Event{
		Kind:       KindTick,
		MatchID:    matchID,
		ServerTime: serverTime,
		TimeLeft:   &timeLeft,
	}
}

func Solved(matchID, userID, problemID string, solvedAt, serverTime time.Time) Event {
	return Event{
		Kind:       KindSolved,
		MatchID:    matchID,
		ServerTime: serverTime,
		UserID:     userID,
		ProblemID:  problemID,
		SolvedAt:   &solvedAt,
	}
}

func Ended(matchID, winnerID string, endedAt, serverTime time.Time) Event {
	return Event{
		Kind:       KindEnded,
		MatchID:    matchID,
		ServerTime: serverTime,
		WinnerID:   winnerID,
		EndedAt:    &endedAt,
	}
}
