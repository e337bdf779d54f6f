package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriptionBuffer = 16

// Hub fans match events out to subscribed connections. Each subscription is
// explicitly bound to exactly one match, membership is never inferred from
// connection state.
//
// Publish is fire-and-forget: it never blocks and never fails the state
// transition that produced the event. A subscriber that cannot keep up loses
// events and is expected to resynchronize via a snapshot fetch.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]*Subscription
}

type Subscription struct {
	id      uuid.UUID
	matchID string
	ch      chan Event
	hub     *Hub
	once    sync.Once
}

// C delivers the events. The channel is closed when the subscription is
// canceled.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) MatchID() string {
	return s.matchID
}

// Close detaches the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.drop(s)
		close(s.ch)
	})
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]map[uuid.UUID]*Subscription),
	}
}

func (h *Hub) Subscribe(matchID string) *Subscription {
	sub := &Subscription{
		id:      uuid.New(),
		matchID: matchID,
		ch:      make(chan Event, subscriptionBuffer),
		hub:     h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subs[matchID]
	if !ok {
		conns = make(map[uuid.UUID]*Subscription)
		h.subs[matchID] = conns
	}
	conns[sub.id] = sub
	return sub
}

func (h *Hub) drop(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subs[sub.matchID]
	if !ok {
		return
	}
	delete(conns, sub.id)
	if len(conns) == 0 {
		delete(h.subs, sub.matchID)
	}
}

// Publish delivers the event to every current subscriber of the match, at
// most once per subscriber. Slow subscribers are skipped.
func (h *Hub) Publish(matchID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[matchID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber",
				slog.String("match_id", matchID),
				slog.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Subscribers reports the current subscriber count for a match.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[matchID])
}
