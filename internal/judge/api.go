// Package judge talks to the external judge's public API. Matches are scored
// from submissions the players make on the judge's own site, the orchestrator
// never receives code or runs anything itself.
package judge

import (
	"context"
	"strings"
)

// ProblemRef identifies a problem on the judge's side.
type ProblemRef struct {
	ContestID int64  `json:"contestId"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
}

type Member struct {
	Handle string `json:"handle"`
}

type Author struct {
	Members []Member `json:"members"`
}

// Submission is one judged run as reported by the judge. Verdict is empty
// while the run is still in testing.
type Submission struct {
	ID                  int64      `json:"id"`
	Problem             ProblemRef `json:"problem"`
	Author              Author     `json:"author"`
	Verdict             string     `json:"verdict"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
}

// ByHandle reports whether the submission was authored by the given handle.
// The judge treats handles case-insensitively, so do we.
func (s *Submission) ByHandle(handle string) bool {
	for i := range s.Author.Members {
		if strings.EqualFold(s.Author.Members[i].Handle, handle) {
			return true
		}
	}
	return false
}

// Client is the read-only slice of the judge API the orchestrator uses.
type Client interface {
	// UserStatus returns the user's most recent submissions, newest first.
	UserStatus(ctx context.Context, handle string, count int) ([]Submission, error)
	// Problems returns the full problemset.
	Problems(ctx context.Context) ([]ProblemRef, error)
}
