package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"codeduel/internal/match"
	"codeduel/internal/util/slogx"
	"codeduel/internal/util/timeutil"
)

type Options struct {
	Path          string        `toml:"path"`
	Debug         bool          `toml:"debug"`
	SlowThreshold time.Duration `toml:"slow-threshold"`
	BusyTimeout   time.Duration `toml:"busy-timeout"`
	UseWAL        bool          `toml:"use-wal"`
}

func (o *Options) FillDefaults() {
	if o.SlowThreshold == 0 {
		o.SlowThreshold = 200 * time.Millisecond
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 1 * time.Minute
	}
}

type DB struct {
	db  *gorm.DB
	log *slog.Logger
}

var _ match.DB = (*DB)(nil)

func (d *DB) Close() {
	db, err := d.db.DB()
	if err != nil {
		d.log.Error("could not get underlying db", slogx.Err(err))
		return
	}
	err = db.Close()
	if err != nil {
		d.log.Error("could not close db", slogx.Err(err))
	}
}

func buildPath(o Options) string {
	var params []string
	if o.UseWAL {
		params = append(params, "_journal_mode=WAL")
		params = append(params, "_synchronous=NORMAL")
	}
	params = append(params, fmt.Sprintf("_busy_timeout=%v", o.BusyTimeout.Milliseconds()))
	params = append(params, "_foreign_keys=1")
	paramStr := strings.Join(params, "&")
	if paramStr == "" {
		return o.Path
	}
	return o.Path + "?" + paramStr
}

func New(log *slog.Logger, o Options) (*DB, error) {
	o.FillDefaults()

	log.Info("opening db")
	db, err := gorm.Open(sqlite.Open(buildPath(o)), &gorm.Config{
		Logger: Logger(log, o),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	d := &DB{db: db, log: log}

	log.Info("migrating db")
	if err := db.AutoMigrate(models...); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	log.Info("db opened")
	return d, nil
}

func (d *DB) CreateMatch(ctx context.Context, m *match.Match) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		err := tx.Model(&match.Match{}).Where("code = ?", m.Code).Count(&cnt).Error
		if err != nil {
			return fmt.Errorf("search for code: %w", err)
		}
		if cnt != 0 {
			return match.ErrCodeTaken
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		return nil
	})
}

func (d *DB) GetMatch(ctx context.Context, matchID string) (*match.Match, error) {
	var matches []match.Match
	err := d.db.WithContext(ctx).
		Preload("Problems").
		Preload("Solves").
		Where("id = ?", matchID).
		Limit(1).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	if len(matches) == 0 {
		return nil, &match.Error{Code: match.ErrNotFound, Message: "no such match"}
	}
	return &matches[0], nil
}

func (d *DB) GetMatchByCode(ctx context.Context, code string) (*match.Match, error) {
	var matches []match.Match
	err := d.db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("get match by code: %w", err)
	}
	if len(matches) == 0 {
		return nil, &match.Error{Code: match.ErrNotFound, Message: "no match with such code"}
	}
	return &matches[0], nil
}

func (d *DB) ListUserMatches(ctx context.Context, userID string) ([]match.Match, error) {
	var matches []match.Match
	err := d.db.WithContext(ctx).
		Where("creator_id = ? OR opponent_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("list user matches: %w", err)
	}
	return matches, nil
}

func (d *DB) ListMatchesInStatus(ctx context.Context, status match.Status) ([]match.Match, error) {
	var matches []match.Match
	err := d.db.WithContext(ctx).
		Preload("Problems").
		Preload("Solves").
		Where("status = ?", status).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("list matches in status: %w", err)
	}
	return matches, nil
}

func (d *DB) SetOpponent(ctx context.Context, matchID string, userID string) error {
	tx := d.db.WithContext(ctx).
		Model(&match.Match{}).
		Where("id = ? AND status = ? AND opponent_id IS NULL", matchID, match.StatusWaiting).
		Update("opponent_id", userID)
	if tx.Error != nil {
		return fmt.Errorf("set opponent: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return &match.Error{Code: match.ErrInvalidState, Message: "match is not open for joining"}
	}
	return nil
}

func (d *DB) CreateProblems(ctx context.Context, problems []match.Problem) error {
	if len(problems) == 0 {
		return nil
	}
	if err := d.db.WithContext(ctx).Create(&problems).Error; err != nil {
		return fmt.Errorf("create problems: %w", err)
	}
	return nil
}

func (d *DB) BeginMatch(ctx context.Context, matchID string, startTime timeutil.UTCTime) error {
	tx := d.db.WithContext(ctx).
		Model(&match.Match{}).
		Where("id = ? AND status = ?", matchID, match.StatusWaiting).
		Updates(map[string]any{
			"status":     match.StatusInProgress,
			"start_time": startTime,
		})
	if tx.Error != nil {
		return fmt.Errorf("begin match: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return &match.Error{Code: match.ErrInvalidState, Message: "match is not waiting to start"}
	}
	return nil
}

func (d *DB) FinishMatch(ctx context.Context, matchID string, endTime timeutil.UTCTime, winnerID *string) error {
	tx := d.db.WithContext(ctx).
		Model(&match.Match{}).
		Where("id = ? AND status = ?", matchID, match.StatusInProgress).
		Updates(map[string]any{
			"status":    match.StatusFinished,
			"end_time":  endTime,
			"winner_id": winnerID,
		})
	if tx.Error != nil {
		return fmt.Errorf("finish match: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return &match.Error{Code: match.ErrInvalidState, Message: "match is not in progress"}
	}
	return nil
}

func (d *DB) CreateSolveEvent(ctx context.Context, event *match.SolveEvent) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		err := tx.Model(&match.SolveEvent{}).
			Where("match_id = ? AND problem_id = ? AND user_id = ? AND verdict = ?",
				event.MatchID, event.ProblemID, event.UserID, match.AcceptedVerdict).
			Count(&cnt).Error
		if err != nil {
			return fmt.Errorf("search for solve: %w", err)
		}
		if cnt != 0 {
			return &match.Error{Code: match.ErrAlreadySolved, Message: "solve already recorded"}
		}
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("create solve event: %w", err)
		}
		return nil
	})
}

func (d *DB) GetUser(ctx context.Context, userID string) (*match.User, error) {
	var users []match.User
	err := d.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return nil, &match.Error{Code: match.ErrNotFound, Message: "no such user"}
	}
	return &users[0], nil
}

func (d *DB) SaveUser(ctx context.Context, user *match.User) error {
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(user).Error
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
