// Package api exposes the match orchestrator over HTTP plus a websocket
// stream per match. Requests and responses are JSON, the caller identifies
// itself with the X-User-ID header.
package api

import (
	"fmt"

	"codeduel/internal/match"
)

// Error is the wire form of a match error. Code carries the stable
// machine-readable kind, Message is free text for humans.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %v: %v", e.Code, e.Message)
}

var _ error = (*Error)(nil)

type CreateMatchRequest struct {
	DifficultyMin   int `json:"difficultyMin"`
	DifficultyMax   int `json:"difficultyMax"`
	ProblemCount    int `json:"problemCount"`
	DurationMinutes int `json:"durationMinutes"`
}

type CreateMatchResponse struct {
	Match *match.Match `json:"match"`
}

type JoinMatchRequest struct {
	Code string `json:"code"`
}

type JoinMatchResponse struct {
	Match *match.Match `json:"match"`
}

type StartMatchRequest struct {
	MatchID string `json:"matchId"`
}

type StartMatchResponse struct {
	Match *match.Match `json:"match"`
}

type SubmitRequest struct {
	MatchID      string `json:"matchId"`
	ProblemID    string `json:"problemId"`
	SubmissionID int64  `json:"submissionId"`
}

type SubmitResponse struct {
	Solve *match.SolveEvent `json:"solve"`
}

type LinkHandleRequest struct {
	Handle string `json:"handle"`
}

type LinkHandleResponse struct{}

type ListMatchesResponse struct {
	Matches []match.Match `json:"matches"`
}
