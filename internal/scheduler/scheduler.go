// Package scheduler drives the wall-clock side of matches: the expiry
// deadline and the periodic countdown tick. Timers are never persisted, they
// are re-derived from (start time, duration, status) on startup, so a restart
// loses nothing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"codeduel/internal/match"
	"codeduel/internal/util/backoff"
	"codeduel/internal/util/slogx"
)

// Callbacks are the match manager's scheduler-facing operations. Both must be
// idempotent: the scheduler may fire them around the edges of an early
// finish.
type Callbacks interface {
	Expire(ctx context.Context, matchID string) error
	Tick(ctx context.Context, matchID string) error
}

// DB is the slice of the store the scheduler needs to rebuild its timers.
type DB interface {
	ListMatchesInStatus(ctx context.Context, status match.Status) ([]match.Match, error)
}

type Options struct {
	TickInterval time.Duration   `toml:"tick-interval"`
	ExpireRetry  backoff.Options `toml:"expire-retry"`
}

func (o *Options) FillDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = 10 * time.Second
	}
	o.ExpireRetry.FillDefaults()
}

type Scheduler struct {
	log   *slog.Logger
	db    DB
	cb    Callbacks
	clock clockwork.Clock
	o     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	armed map[string]context.CancelFunc
}

func New(log *slog.Logger, db DB, cb Callbacks, clock clockwork.Clock, o Options) (*Scheduler, error) {
	o.FillDefaults()
	if err := o.ExpireRetry.Validate(); err != nil {
		return nil, fmt.Errorf("bad expire retry options: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log,
		db:     db,
		cb:     cb,
		clock:  clock,
		o:      o,
		ctx:    ctx,
		cancel: cancel,
		armed:  make(map[string]context.CancelFunc),
	}, nil
}

// Rearm rebuilds timers for every in-progress match found in the store. Call
// once on startup, before serving requests. Matches already past their
// deadline get a zero timer and expire immediately.
func (s *Scheduler) Rearm(ctx context.Context) error {
	matches, err := s.db.ListMatchesInStatus(ctx, match.StatusInProgress)
	if err != nil {
		return err
	}
	for i := range matches {
		s.Arm(&matches[i])
	}
	if len(matches) != 0 {
		s.log.Info("rearmed match timers", slog.Int("count", len(matches)))
	}
	return nil
}

// Arm starts the deadline and tick timers for a match. Arming an already
// armed match is a no-op, so the startup sweep and the start operation cannot
// double-fire.
func (s *Scheduler) Arm(m *match.Match) {
	deadline, ok := m.Deadline()
	if !ok || m.Status != match.StatusInProgress {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.armed[m.ID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.armed[m.ID] = cancel

	s.wg.Add(1)
	go s.run(ctx, m.ID, deadline.UTC())
}

// Disarm cancels the timers for a match. Idempotent.
func (s *Scheduler) Disarm(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.armed[matchID]; ok {
		cancel()
		delete(s.armed, matchID)
	}
}

// Close cancels all timers and waits for their goroutines to drain.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, matchID string, deadline time.Time) {
	defer s.wg.Done()
	defer s.Disarm(matchID)

	timer := s.clock.NewTimer(max(0, deadline.Sub(s.clock.Now())))
	defer timer.Stop()
	ticker := s.clock.NewTicker(s.o.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.cb.Tick(ctx, matchID); err != nil {
				s.log.Warn("tick failed", slog.String("match_id", matchID), slogx.Err(err))
			}
		case <-timer.Chan():
			s.expire(ctx, matchID)
			return
		}
	}
}

// expire drives the deadline transition, retrying with backoff on transient
// store failures. A match that never expires is a stuck match, so keep trying
// until canceled or out of attempts.
func (s *Scheduler) expire(ctx context.Context, matchID string) {
	b, err := backoff.New(s.o.ExpireRetry, s.clock)
	if err != nil {
		panic("must not happen, options are validated in New")
	}
	for {
		err := s.cb.Expire(ctx, matchID)
		if err == nil {
			return
		}
		s.log.Warn("expire failed, will retry", slog.String("match_id", matchID), slogx.Err(err))
		if rerr := b.Retry(ctx, err); rerr != nil {
			if ctx.Err() == nil {
				s.log.Error("giving up expiring match", slog.String("match_id", matchID), slogx.Err(rerr))
			}
			return
		}
	}
}
