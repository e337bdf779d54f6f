package match

import (
	"time"

	"codeduel/internal/util/timeutil"
)

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

func (s Status) IsFinished() bool {
	return s == StatusFinished
}

// AcceptedVerdict is the only verdict under which a solve event is recorded.
// It mirrors the judge's wire value.
const AcceptedVerdict = "OK"

// User is the minimal user surface the orchestrator needs: an identity plus
// the linked judge handle used to verify submission authorship.
type User struct {
	ID     string `gorm:"primaryKey" json:"id"`
	Handle string `json:"handle"`
}

// Problem is one task assigned to a match, identified on the judge's side by
// (contest id, index). Created once before the match starts, immutable after.
type Problem struct {
	ID        string `gorm:"primaryKey" json:"id"`
	MatchID   string `gorm:"index" json:"-"`
	ContestID int64  `json:"contestId"`
	Index     string `json:"index"`
	Title     string `json:"title"`
	Rating    int    `json:"rating"`
}

// SolveEvent is a validated accepted solution for (user, problem) within a
// match. Append-only, at most one accepted event per (user, problem).
type SolveEvent struct {
	ID           string           `gorm:"primaryKey" json:"id"`
	MatchID      string           `gorm:"index" json:"-"`
	ProblemID    string           `gorm:"index" json:"problemId"`
	UserID       string           `json:"userId"`
	SubmissionID int64            `json:"submissionId"`
	Verdict      string           `json:"verdict"`
	SolvedAt     timeutil.UTCTime `json:"solvedAt"`
}

type Match struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	Code          string            `gorm:"uniqueIndex" json:"code"`
	Name          string            `json:"name"`
	DifficultyMin int               `json:"difficultyMin"`
	DifficultyMax int               `json:"difficultyMax"`
	ProblemCount  int               `json:"problemCount"`
	Duration      time.Duration     `json:"duration"`
	Status        Status            `gorm:"index" json:"status"`
	StartTime     *timeutil.UTCTime `json:"startTime,omitempty"`
	EndTime       *timeutil.UTCTime `json:"endTime,omitempty"`
	CreatorID     string            `gorm:"index" json:"creatorId"`
	OpponentID    *string           `gorm:"index" json:"opponentId,omitempty"`
	WinnerID      *string           `json:"winnerId,omitempty"`
	CreatedAt     timeutil.UTCTime  `json:"createdAt"`

	Problems []Problem    `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE" json:"problems,omitempty"`
	Solves   []SolveEvent `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE" json:"solves,omitempty"`
}

func (m *Match) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if m.CreatorID == userID {
		return true
	}
	return m.OpponentID != nil && *m.OpponentID == userID
}

func (m *Match) HasProblem(problemID string) bool {
	for i := range m.Problems {
		if m.Problems[i].ID == problemID {
			return true
		}
	}
	return false
}

// Deadline reports when the match is due to expire. Only meaningful once the
// match has started.
func (m *Match) Deadline() (timeutil.UTCTime, bool) {
	if m.StartTime == nil {
		return timeutil.UTCTime{}, false
	}
	return m.StartTime.Add(m.Duration), true
}

// TimeLeft computes the remaining time against the given server clock value,
// clamped to zero. The server clock is authoritative, clients must never
// derive deadlines from local time alone.
func (m *Match) TimeLeft(now timeutil.UTCTime) time.Duration {
	deadline, ok := m.Deadline()
	if !ok || m.Status != StatusInProgress {
		return 0
	}
	return max(0, deadline.Sub(now))
}

func (m *Match) acceptedSolves(userID string) int {
	cnt := 0
	for i := range m.Solves {
		if m.Solves[i].UserID == userID && m.Solves[i].Verdict == AcceptedVerdict {
			cnt++
		}
	}
	return cnt
}

func (m *Match) hasAcceptedSolve(userID, problemID string) bool {
	for i := range m.Solves {
		s := &m.Solves[i]
		if s.UserID == userID && s.ProblemID == problemID && s.Verdict == AcceptedVerdict {
			return true
		}
	}
	return false
}

// allCompleted reports whether every bound participant has an accepted solve
// for every problem of the match. This is the early-finish condition.
func (m *Match) allCompleted() bool {
	if len(m.Problems) == 0 {
		return false
	}
	if m.acceptedSolves(m.CreatorID) != len(m.Problems) {
		return false
	}
	if m.OpponentID == nil {
		return true
	}
	return m.acceptedSolves(*m.OpponentID) == len(m.Problems)
}
