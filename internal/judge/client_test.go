package judge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeduel/internal/match"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{
		BaseURL:   srv.URL,
		RateEvery: time.Millisecond,
		RateBurst: 100,
	})
}

func TestUserStatus(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user.status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("handle"); got != "tourist" {
			t.Errorf("handle = %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "30" {
			t.Errorf("count = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"result": [
				{
					"id": 42,
					"problem": {"contestId": 1000, "index": "A", "name": "Theatre Square", "rating": 1000},
					"author": {"members": [{"handle": "Tourist"}]},
					"verdict": "OK",
					"creationTimeSeconds": 1700000000
				}
			]
		}`))
	})

	subs, err := cli.UserStatus(context.Background(), "tourist", 30)
	if err != nil {
		t.Fatalf("UserStatus: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %v submissions, want 1", len(subs))
	}
	s := subs[0]
	if s.ID != 42 || s.Problem.ContestID != 1000 || s.Problem.Index != "A" || s.Verdict != "OK" {
		t.Fatalf("unexpected submission: %+v", s)
	}
	if !s.ByHandle("tourist") {
		t.Fatalf("ByHandle must match case-insensitively")
	}
	if s.ByHandle("someone-else") {
		t.Fatalf("ByHandle matched a foreign handle")
	}
}

func TestCallFailedStatus(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "FAILED", "comment": "handle: User not found"}`))
	})
	_, err := cli.UserStatus(context.Background(), "nobody", 30)
	if !match.MatchesError(err, match.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
}

func TestCallHTTPError(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := cli.Problems(context.Background())
	if !match.MatchesError(err, match.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
}

func TestSourcePick(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/problemset.problems" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"result": {"problems": [
				{"contestId": 1, "index": "A", "name": "Low", "rating": 800},
				{"contestId": 1, "index": "B", "name": "Mid", "rating": 1500},
				{"contestId": 2, "index": "A", "name": "Mid2", "rating": 1600},
				{"contestId": 2, "index": "B", "name": "High", "rating": 2400},
				{"contestId": 3, "index": "A", "name": "Unrated", "rating": 0}
			]}
		}`))
	})
	src := NewSource(cli)

	picked, err := src.Pick(context.Background(), 1400, 1700, 2)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if len(picked) != 2 {
		t.Fatalf("got %v problems, want 2", len(picked))
	}
	for _, p := range picked {
		if p.Rating < 1400 || p.Rating > 1700 {
			t.Fatalf("picked out-of-range problem: %+v", p)
		}
	}
	if picked[0].ContestID == picked[1].ContestID && picked[0].Index == picked[1].Index {
		t.Fatalf("picked the same problem twice")
	}

	_, err = src.Pick(context.Background(), 1400, 1700, 5)
	if !match.MatchesError(err, match.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable on a thin pool", err)
	}
}
