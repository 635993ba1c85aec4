package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partydeck/hangout-backend/internal/game"
)

const maxTxAttempts = 4

// Postgres backs the store with one row table per entity. Entity-group
// atomicity comes from running every Update at SERIALIZABLE isolation and
// retrying the whole body on serialization failure, so concurrent guard
// checks against the same hangout cannot both act on a stale view.
type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects, migrates the schema and returns the store.
func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&game.Hangout{}, &game.Game{}, &game.Participant{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (s *Postgres) Update(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error {
	return s.withRetries(ctx, hangoutID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&pgTx{db: tx})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	})
}

// withRetries reruns attempt while it fails with transaction contention,
// up to maxTxAttempts with linear backoff. Non-retryable errors pass
// through unchanged; exhaustion surfaces as ErrContention.
func (s *Postgres) withRetries(ctx context.Context, hangoutID string, attempt func() error) error {
	var lastErr error
	for i := 1; i <= maxTxAttempts; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		s.log.Debug("retrying contended transaction",
			zap.String("hangout_id", hangoutID),
			zap.Int("attempt", i),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * 10 * time.Millisecond):
		}
	}
	s.log.Warn("transaction retries exhausted",
		zap.String("hangout_id", hangoutID), zap.Error(lastErr))
	return ErrContention
}

func (s *Postgres) View(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgTx{db: tx, readOnly: true})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
}

func (s *Postgres) ExpiredHangouts(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&game.Hangout{}).
		Joins("JOIN games ON games.id = hangouts.current_game_id").
		Where("games.timeout_at IS NOT NULL AND games.timeout_at <= ?", now).
		Where("games.state IN ?", []game.Phase{game.PhaseStartRound, game.PhaseVoting}).
		Pluck("hangouts.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list expired hangouts: %w", err)
	}
	return ids, nil
}

// retryable reports whether the error is transaction contention worth a
// fresh attempt: serialization failure (40001) or deadlock detected (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct {
	db       *gorm.DB
	readOnly bool
}

func (t *pgTx) Hangout(id string) (*game.Hangout, error) {
	var h game.Hangout
	if err := t.db.First(&h, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

func (t *pgTx) PutHangout(h *game.Hangout) error {
	if t.readOnly {
		return errReadOnly
	}
	return t.db.Save(h).Error
}

func (t *pgTx) Game(id string) (*game.Game, error) {
	var g game.Game
	if err := t.db.First(&g, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (t *pgTx) PutGame(g *game.Game) error {
	if t.readOnly {
		return errReadOnly
	}
	return t.db.Save(g).Error
}

func (t *pgTx) Participant(gameID, plusID string) (*game.Participant, error) {
	var p game.Participant
	err := t.db.First(&p, "game_id = ? AND plus_id = ?", gameID, plusID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *pgTx) Participants(gameID string) ([]*game.Participant, error) {
	var ps []*game.Participant
	err := t.db.Where("game_id = ?", gameID).Order("plus_id").Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (t *pgTx) PutParticipant(p *game.Participant) error {
	if t.readOnly {
		return errReadOnly
	}
	return t.db.Save(p).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return game.ErrNotFound
	}
	return err
}
