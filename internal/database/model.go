package database

import (
	"codeduel/internal/match"
)

var models = []any{
	&match.Match{},
	&match.Problem{},
	&match.SolveEvent{},
	&match.User{},
}
