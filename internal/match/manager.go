package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/jonboulle/clockwork"

	"codeduel/internal/broadcast"
	"codeduel/internal/util/idgen"
	"codeduel/internal/util/slogx"
	"codeduel/internal/util/timeutil"
)

type Options struct {
	MinRating    int           `toml:"min-rating"`
	MaxRating    int           `toml:"max-rating"`
	MaxProblems  int           `toml:"max-problems"`
	MinDuration  time.Duration `toml:"min-duration"`
	MaxDuration  time.Duration `toml:"max-duration"`
	CodeAttempts int           `toml:"code-attempts"`
}

func (o *Options) FillDefaults() {
	if o.MinRating == 0 {
		o.MinRating = 800
	}
	if o.MaxRating == 0 {
		o.MaxRating = 3500
	}
	if o.MaxProblems == 0 {
		o.MaxProblems = 10
	}
	if o.MinDuration == 0 {
		o.MinDuration = 15 * time.Minute
	}
	if o.MaxDuration == 0 {
		o.MaxDuration = 3 * time.Hour
	}
	if o.CodeAttempts == 0 {
		o.CodeAttempts = 10
	}
}

// Verifier validates a claimed solve against the external judge. It performs
// no writes and is called outside the per-match lock, the manager re-checks
// the invariants before committing.
type Verifier interface {
	VerifySolve(ctx context.Context, matchID, userID, problemID string, submissionID int64) (timeutil.UTCTime, error)
}

// ProblemSource supplies the problem batch for a starting match. The
// returned problems carry judge-side identity only, the manager assigns
// match-side identity.
type ProblemSource interface {
	Pick(ctx context.Context, minRating, maxRating, count int) ([]Problem, error)
}

// Scheduler tracks wall-clock deadlines for in-progress matches.
type Scheduler interface {
	Arm(m *Match)
	Disarm(matchID string)
}

type matchLock struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the match lifecycle: WAITING -> IN_PROGRESS -> FINISHED, no
// back-transitions. All state-mutating operations on a match serialize on a
// per-match lock, so a deadline firing and a last-second submission cannot
// both decide the match is finished with different winners.
type Manager struct {
	log   *slog.Logger
	db    DB
	src   ProblemSource
	vrf   Verifier
	hub   *broadcast.Hub
	clock clockwork.Clock
	o     Options

	sched Scheduler

	mu    sync.Mutex
	locks map[string]*matchLock
}

func NewManager(
	log *slog.Logger,
	db DB,
	src ProblemSource,
	vrf Verifier,
	hub *broadcast.Hub,
	clock clockwork.Clock,
	o Options,
) *Manager {
	o.FillDefaults()
	return &Manager{
		log:   log,
		db:    db,
		src:   src,
		vrf:   vrf,
		hub:   hub,
		clock: clock,
		o:     o,
		locks: make(map[string]*matchLock),
	}
}

// SetScheduler wires the deadline scheduler. The scheduler needs the manager
// as its expiry callback, so the two are connected after construction.
func (m *Manager) SetScheduler(s Scheduler) {
	m.sched = s
}

func (m *Manager) now() timeutil.UTCTime {
	return timeutil.FromTime(m.clock.Now())
}

// lockMatch acquires the mutual-exclusion scope for a match. The returned
// function releases it.
func (m *Manager) lockMatch(matchID string) func() {
	m.mu.Lock()
	l, ok := m.locks[matchID]
	if !ok {
		l = &matchLock{}
		m.locks[matchID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, matchID)
		}
		m.mu.Unlock()
	}
}

type CreateParams struct {
	DifficultyMin int
	DifficultyMax int
	ProblemCount  int
	Duration      time.Duration
}

func (m *Manager) validateCreate(p CreateParams) error {
	if p.DifficultyMin > p.DifficultyMax {
		return newError(ErrInvalidParameters, "difficulty range is inverted")
	}
	if p.DifficultyMin < m.o.MinRating || p.DifficultyMax > m.o.MaxRating {
		return newError(ErrInvalidParameters, "difficulty must be between %v and %v", m.o.MinRating, m.o.MaxRating)
	}
	if p.ProblemCount < 1 || p.ProblemCount > m.o.MaxProblems {
		return newError(ErrInvalidParameters, "problem count must be between 1 and %v", m.o.MaxProblems)
	}
	if p.Duration < m.o.MinDuration || p.Duration > m.o.MaxDuration {
		return newError(ErrInvalidParameters, "duration must be between %v and %v", m.o.MinDuration, m.o.MaxDuration)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, creatorID string, p CreateParams) (*Match, error) {
	if creatorID == "" {
		return nil, newError(ErrForbidden, "no requesting user")
	}
	if err := m.validateCreate(p); err != nil {
		return nil, err
	}

	for range m.o.CodeAttempts {
		mt := &Match{
			ID:            idgen.ID(),
			Code:          idgen.JoinCode(),
			Name:          petname.Generate(2, "-"),
			DifficultyMin: p.DifficultyMin,
			DifficultyMax: p.DifficultyMax,
			ProblemCount:  p.ProblemCount,
			Duration:      p.Duration,
			Status:        StatusWaiting,
			CreatorID:     creatorID,
			CreatedAt:     m.now(),
		}
		err := m.db.CreateMatch(ctx, mt)
		if err == nil {
			m.log.Info("created match",
				slog.String("match_id", mt.ID),
				slog.String("code", mt.Code),
				slog.String("creator", creatorID),
			)
			return mt, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return nil, fmt.Errorf("create match: %w", err)
	}
	return nil, fmt.Errorf("could not generate a unique join code in %v attempts", m.o.CodeAttempts)
}

func (m *Manager) Join(ctx context.Context, userID, code string) (*Match, error) {
	if userID == "" {
		return nil, newError(ErrForbidden, "no requesting user")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !idgen.ValidJoinCode(code) {
		return nil, newError(ErrNotFound, "no match with such code")
	}
	found, err := m.db.GetMatchByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	unlock := m.lockMatch(found.ID)
	defer unlock()

	mt, err := m.db.GetMatch(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if mt.Status != StatusWaiting {
		return nil, newError(ErrAlreadyStarted, "match has already started or finished")
	}
	if mt.CreatorID == userID {
		return nil, newError(ErrSelfJoin, "cannot join your own match")
	}
	if mt.OpponentID != nil {
		return nil, newError(ErrFull, "match already has an opponent")
	}
	if err := m.db.SetOpponent(ctx, mt.ID, userID); err != nil {
		return nil, err
	}
	m.log.Info("user joined match",
		slog.String("match_id", mt.ID),
		slog.String("user", userID),
	)
	return m.db.GetMatch(ctx, mt.ID)
}

func (m *Manager) checkStartable(mt *Match, userID string) error {
	if mt.CreatorID != userID {
		return newError(ErrForbidden, "only the match creator can start the match")
	}
	if mt.Status != StatusWaiting {
		return newError(ErrInvalidState, "match has already started or finished")
	}
	if mt.OpponentID == nil {
		return newError(ErrNoOpponent, "cannot start a match without an opponent")
	}
	return nil
}

func (m *Manager) Start(ctx context.Context, userID, matchID string) (*Match, error) {
	mt, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := m.checkStartable(mt, userID); err != nil {
		return nil, err
	}

	// The problem batch is fetched before taking the per-match lock: the
	// upstream call is slow I/O and must not starve other operations on the
	// match. The commit below re-validates under the lock, so a lost race
	// only wastes the fetch.
	var batch []Problem
	if len(mt.Problems) == 0 {
		batch, err = m.src.Pick(ctx, mt.DifficultyMin, mt.DifficultyMax, mt.ProblemCount)
		if err != nil {
			return nil, err
		}
		for i := range batch {
			batch[i].ID = idgen.ID()
			batch[i].MatchID = mt.ID
		}
	}

	unlock := m.lockMatch(matchID)
	defer unlock()

	mt, err = m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := m.checkStartable(mt, userID); err != nil {
		return nil, err
	}
	if len(mt.Problems) == 0 {
		if err := m.db.CreateProblems(ctx, batch); err != nil {
			return nil, fmt.Errorf("persist problem batch: %w", err)
		}
	}
	now := m.now()
	if err := m.db.BeginMatch(ctx, matchID, now); err != nil {
		return nil, err
	}
	mt, err = m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.sched != nil {
		m.sched.Arm(mt)
	}
	m.log.Info("match started",
		slog.String("match_id", mt.ID),
		slog.Duration("duration", mt.Duration),
		slog.Int("problems", len(mt.Problems)),
	)
	m.hub.Publish(mt.ID, broadcast.Started(mt.ID, int64(mt.TimeLeft(now)/time.Second), now.UTC()))
	return mt, nil
}

func (m *Manager) checkSubmittable(mt *Match, userID, problemID string) error {
	if mt.Status != StatusInProgress {
		return newError(ErrInvalidState, "match is not in progress")
	}
	if !mt.IsParticipant(userID) {
		return newError(ErrForbidden, "you are not a participant in this match")
	}
	if !mt.HasProblem(problemID) {
		return newError(ErrInvalidProblem, "problem does not belong to this match")
	}
	if mt.hasAcceptedSolve(userID, problemID) {
		return newError(ErrAlreadySolved, "you have already solved this problem")
	}
	return nil
}

// Submit records an externally judged accepted solution. Verification runs
// against the judge outside the per-match lock, then the invariants are
// re-checked and the event committed inside it.
func (m *Manager) Submit(ctx context.Context, userID, matchID, problemID string, submissionID int64) (*SolveEvent, error) {
	mt, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := m.checkSubmittable(mt, userID, problemID); err != nil {
		return nil, err
	}

	solvedAt, err := m.vrf.VerifySolve(ctx, matchID, userID, problemID, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := m.lockMatch(matchID)
	defer unlock()

	mt, err = m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := m.checkSubmittable(mt, userID, problemID); err != nil {
		return nil, err
	}

	event := &SolveEvent{
		ID:           idgen.ID(),
		MatchID:      matchID,
		ProblemID:    problemID,
		UserID:       userID,
		SubmissionID: submissionID,
		Verdict:      AcceptedVerdict,
		SolvedAt:     solvedAt,
	}
	if err := m.db.CreateSolveEvent(ctx, event); err != nil {
		return nil, err
	}
	mt.Solves = append(mt.Solves, *event)

	m.log.Info("problem solved",
		slog.String("match_id", matchID),
		slog.String("user", userID),
		slog.String("problem", problemID),
	)
	m.hub.Publish(matchID, broadcast.Solved(matchID, userID, problemID, solvedAt.UTC(), m.now().UTC()))

	if mt.allCompleted() {
		if err := m.finishLocked(ctx, mt); err != nil {
			// The solve is committed, the deadline timer will retry the
			// transition.
			m.log.Error("early finish failed", slog.String("match_id", matchID), slogx.Err(err))
		}
	}
	return event, nil
}

// finishLocked resolves the winner and moves the match to FINISHED. Callers
// must hold the per-match lock and have verified status == IN_PROGRESS.
func (m *Manager) finishLocked(ctx context.Context, mt *Match) error {
	winnerID := ResolveWinner(mt)
	var winner *string
	if winnerID != "" {
		winner = &winnerID
	}
	now := m.now()
	if err := m.db.FinishMatch(ctx, mt.ID, now, winner); err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if m.sched != nil {
		m.sched.Disarm(mt.ID)
	}
	m.log.Info("match finished",
		slog.String("match_id", mt.ID),
		slog.String("winner", winnerID),
	)
	m.hub.Publish(mt.ID, broadcast.Ended(mt.ID, winnerID, now.UTC(), now.UTC()))
	return nil
}

// Expire moves the match to FINISHED once its deadline has passed. Driven by
// the scheduler, but safe to call from any path: if the match has already
// finished (for example raced by an early finish), it is a no-op.
func (m *Manager) Expire(ctx context.Context, matchID string) error {
	unlock := m.lockMatch(matchID)
	defer unlock()

	mt, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if mt.Status != StatusInProgress {
		return nil
	}
	return m.finishLocked(ctx, mt)
}

// Tick publishes the remaining time to the match's subscribers. Driven by
// the scheduler at a fixed cadence while the match is in progress.
func (m *Manager) Tick(ctx context.Context, matchID string) error {
	mt, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if mt.Status != StatusInProgress {
		if m.sched != nil {
			m.sched.Disarm(matchID)
		}
		return nil
	}
	now := m.now()
	m.hub.Publish(matchID, broadcast.Tick(matchID, int64(mt.TimeLeft(now)/time.Second), now.UTC()))
	return nil
}

// Snapshot is the authoritative match state handed to clients on demand.
type Snapshot struct {
	Match      *Match    `json:"match"`
	TimeLeft   int64     `json:"timeLeft"`
	ServerTime time.Time `json:"serverTime"`
}

// GetSnapshot returns the current state plus the remaining time computed
// from the server clock. A match found past its deadline but not yet expired
// is finished inline through the same path the deadline timer uses.
func (m *Manager) GetSnapshot(ctx context.Context, requesterID, matchID string) (*Snapshot, error) {
	mt, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !mt.IsParticipant(requesterID) {
		return nil, newError(ErrForbidden, "you do not participate in this match")
	}

	now := m.now()
	if mt.Status == StatusInProgress && mt.TimeLeft(now) == 0 {
		if err := m.Expire(ctx, matchID); err != nil {
			m.log.Warn("could not expire overdue match", slog.String("match_id", matchID), slogx.Err(err))
		} else {
			mt, err = m.db.GetMatch(ctx, matchID)
			if err != nil {
				return nil, err
			}
		}
	}

	return &Snapshot{
		Match:      mt,
		TimeLeft:   int64(mt.TimeLeft(now) / time.Second),
		ServerTime: now.UTC(),
	}, nil
}

// ListForUser returns the matches the user created or joined, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]Match, error) {
	if userID == "" {
		return nil, newError(ErrForbidden, "no requesting user")
	}
	return m.db.ListUserMatches(ctx, userID)
}

// LinkHandle binds the user's judge handle, used by the verifier to check
// submission authorship.
func (m *Manager) LinkHandle(ctx context.Context, userID, handle string) error {
	if userID == "" {
		return newError(ErrForbidden, "no requesting user")
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return newError(ErrInvalidParameters, "empty judge handle")
	}
	return m.db.SaveUser(ctx, &User{ID: userID, Handle: handle})
}
