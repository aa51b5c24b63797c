package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JPaulGrayson/QuackQuack/internal/db"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// GormStore is the durable Store backing conversation sessions.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(logger *log.Logger, driver, dsn string) (*GormStore, error) {
	gormDB, err := db.OpenGorm(logger, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open convo store: %w", err)
	}
	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&convoSessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate convo store: %w", err)
	}
	return store, nil
}

func (s *GormStore) Get(ctx context.Context, key string) (types.ConvoSession, error) {
	var row convoSessionRow
	err := s.db.WithContext(ctx).Where("convo_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ConvoSession{}, ErrNotFound
		}
		return types.ConvoSession{}, fmt.Errorf("get convo session: %w", err)
	}
	return row.toRecord()
}

func (s *GormStore) Put(ctx context.Context, session types.ConvoSession) error {
	row, err := convoSessionRowFromRecord(session)
	if err != nil {
		return fmt.Errorf("marshal convo session: %w", err)
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "convo_key"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put convo session: %w", err)
	}
	return nil
}

func (s *GormStore) ListActiveExpiredBefore(ctx context.Context, at time.Time) ([]types.ConvoSession, error) {
	var rows []convoSessionRow
	err := s.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", []string{string(types.ConvoActive), string(types.ConvoAwaitingReply), string(types.ConvoAwaitingHuman)}, at).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active expired: %w", err)
	}
	return decodeRows(rows)
}

func (s *GormStore) ListTerminalOlderThan(ctx context.Context, at time.Time) ([]types.ConvoSession, error) {
	var rows []convoSessionRow
	err := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?", []string{string(types.ConvoCompleted), string(types.ConvoAbandoned)}, at).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list terminal older than: %w", err)
	}
	return decodeRows(rows)
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("convo_key = ?", key).Delete(&convoSessionRow{}).Error; err != nil {
		return fmt.Errorf("delete convo session: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func decodeRows(rows []convoSessionRow) ([]types.ConvoSession, error) {
	out := make([]types.ConvoSession, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode convo session: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

type convoSessionRow struct {
	ConvoKey      string     `gorm:"column:convo_key;primaryKey;size:255"`
	From          string     `gorm:"size:191"`
	To            string     `gorm:"size:191"`
	ThreadID      string     `gorm:"size:191"`
	Participants  string     `gorm:"type:text"`
	Status        string     `gorm:"size:32;index"`
	CurrentTurn   string     `gorm:"size:191"`
	TurnCount     int        `gorm:"not null;default:0"`
	MessageCount  int        `gorm:"not null;default:0"`
	CreatedAt     time.Time  `gorm:"not null"`
	LastMessageAt time.Time  `gorm:"not null"`
	ExpiresAt     time.Time  `gorm:"not null;index"`
	CompletedAt   *time.Time `gorm:"index"`
}

func (convoSessionRow) TableName() string { return "convo_sessions" }

func convoSessionRowFromRecord(rec types.ConvoSession) (convoSessionRow, error) {
	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return convoSessionRow{}, err
	}
	return convoSessionRow{
		ConvoKey:      rec.Key,
		From:          rec.From,
		To:            rec.To,
		ThreadID:      rec.ThreadID,
		Participants:  string(participants),
		Status:        string(rec.Status),
		CurrentTurn:   rec.CurrentTurn,
		TurnCount:     rec.TurnCount,
		MessageCount:  rec.MessageCount,
		CreatedAt:     rec.CreatedAt,
		LastMessageAt: rec.LastMessageAt,
		ExpiresAt:     rec.ExpiresAt,
		CompletedAt:   rec.CompletedAt,
	}, nil
}

func (r convoSessionRow) toRecord() (types.ConvoSession, error) {
	rec := types.ConvoSession{
		Key:           r.ConvoKey,
		From:          r.From,
		To:            r.To,
		ThreadID:      r.ThreadID,
		Status:        types.ConvoStatus(r.Status),
		CurrentTurn:   r.CurrentTurn,
		TurnCount:     r.TurnCount,
		MessageCount:  r.MessageCount,
		CreatedAt:     r.CreatedAt,
		LastMessageAt: r.LastMessageAt,
		ExpiresAt:     r.ExpiresAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.Participants != "" {
		if err := json.Unmarshal([]byte(r.Participants), &rec.Participants); err != nil {
			return types.ConvoSession{}, err
		}
	}
	return rec, nil
}

var _ Store = (*GormStore)(nil)
