package judge

import (
	"context"
	"fmt"
	"math/rand/v2"

	"codeduel/internal/match"
)

// Source picks random problems from the judge's problemset for a starting
// match. It implements match.ProblemSource.
type Source struct {
	client Client
}

func NewSource(client Client) *Source {
	return &Source{client: client}
}

var _ match.ProblemSource = (*Source)(nil)

// Pick returns count distinct problems whose rating falls into the inclusive
// range. Unrated problems are never picked.
func (s *Source) Pick(ctx context.Context, minRating, maxRating, count int) ([]match.Problem, error) {
	all, err := s.client.Problems(ctx)
	if err != nil {
		return nil, err
	}

	pool := make([]ProblemRef, 0, len(all))
	for _, p := range all {
		if p.Rating >= minRating && p.Rating <= maxRating && p.ContestID != 0 {
			pool = append(pool, p)
		}
	}
	if len(pool) < count {
		return nil, &match.Error{
			Code:    match.ErrUpstreamUnavailable,
			Message: fmt.Sprintf("judge has only %v problems rated %v..%v, need %v", len(pool), minRating, maxRating, count),
		}
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	picked := make([]match.Problem, count)
	for i, p := range pool[:count] {
		picked[i] = match.Problem{
			ContestID: p.ContestID,
			Index:     p.Index,
			Title:     p.Name,
			Rating:    p.Rating,
		}
	}
	return picked, nil
}
