package recorder

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

// GormStore is the durable Store backing Flight Recorder sessions and
// entries, grounded on the teacher's session.GormStore: same
// transaction-wrapped sequence pattern for a table needing strict
// per-parent ordering, adapted here for entry_count instead of a turn
// sequence number.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(logger *log.Logger, driver, dsn string) (*GormStore, error) {
	gormDB, err := db.OpenGorm(logger, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open recorder store: %w", err)
	}
	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&recorderSessionRow{}, &journalEntryRow{}); err != nil {
		return nil, fmt.Errorf("migrate recorder store: %w", err)
	}
	return store, nil
}

func (s *GormStore) UpsertSession(ctx context.Context, session types.RecorderSession) (types.RecorderSession, error) {
	row := recorderSessionRowFromRecord(session)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return types.RecorderSession{}, fmt.Errorf("upsert session: %w", err)
	}

	var current recorderSessionRow
	if err := s.db.WithContext(ctx).Where("session_id = ?", session.SessionID).Take(&current).Error; err != nil {
		return types.RecorderSession{}, fmt.Errorf("read upserted session: %w", err)
	}
	return current.toRecord(), nil
}

func (s *GormStore) MostRecentActiveSession(ctx context.Context, agentID string) (types.RecorderSession, error) {
	var row recorderSessionRow
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND active = ?", agentID, true).
		Order("last_activity DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.RecorderSession{}, ErrNotFound
		}
		return types.RecorderSession{}, fmt.Errorf("most recent active session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (types.RecorderSession, error) {
	var row recorderSessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.RecorderSession{}, ErrNotFound
		}
		return types.RecorderSession{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&recorderSessionRow{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"entry_count":   gorm.Expr("entry_count + 1"),
			"last_activity": at,
		})
	if res.Error != nil {
		return fmt.Errorf("touch session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CloseSession(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&recorderSessionRow{}).
		Where("session_id = ?", sessionID).
		Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("close session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CloseSessionsForAgent(ctx context.Context, agentID string) error {
	if err := s.db.WithContext(ctx).Model(&recorderSessionRow{}).
		Where("agent_id = ?", agentID).
		Update("active", false).Error; err != nil {
		return fmt.Errorf("close agent sessions: %w", err)
	}
	return nil
}

func (s *GormStore) AppendEntry(ctx context.Context, entry types.JournalEntry) error {
	row, err := journalEntryRowFromRecord(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *GormStore) EntriesForSession(ctx context.Context, sessionID string, limit int) ([]types.JournalEntry, error) {
	query := s.db.WithContext(ctx).Where("session_id = ?", sessionID)
	return s.runEntriesQuery(query, limit)
}

func (s *GormStore) EntriesForAgent(ctx context.Context, agentID string, limit int) ([]types.JournalEntry, error) {
	query := s.db.WithContext(ctx).Where("agent_id = ?", agentID)
	return s.runEntriesQuery(query, limit)
}

// runEntriesQuery applies an optional "last N, oldest first" limit. A plain
// ORDER BY ASC LIMIT N would give the oldest N, not the most recent N, so
// when a limit is requested the query is run DESC then reversed in Go.
func (s *GormStore) runEntriesQuery(query *gorm.DB, limit int) ([]types.JournalEntry, error) {
	if limit > 0 {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).Limit(limit)
	} else {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}})
	}
	var rows []journalEntryRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]types.JournalEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		out = append(out, entry)
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

type recorderSessionRow struct {
	SessionID    string    `gorm:"primaryKey;size:191"`
	AgentID      string    `gorm:"size:191;index;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	LastActivity time.Time `gorm:"not null;index"`
	EntryCount   int       `gorm:"not null;default:0"`
	Active       bool      `gorm:"not null;index"`
}

func (recorderSessionRow) TableName() string { return "recorder_sessions" }

func (r recorderSessionRow) toRecord() types.RecorderSession {
	return types.RecorderSession{
		SessionID:    r.SessionID,
		AgentID:      r.AgentID,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		EntryCount:   r.EntryCount,
		Active:       r.Active,
	}
}

func recorderSessionRowFromRecord(rec types.RecorderSession) recorderSessionRow {
	return recorderSessionRow{
		SessionID:    rec.SessionID,
		AgentID:      rec.AgentID,
		CreatedAt:    rec.CreatedAt,
		LastActivity: rec.LastActivity,
		EntryCount:   rec.EntryCount,
		Active:       rec.Active,
	}
}

type journalEntryRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	SessionID string    `gorm:"size:191;index;not null"`
	AgentID   string    `gorm:"size:191;index;not null"`
	Timestamp time.Time `gorm:"not null;index"`
	Type      string    `gorm:"size:32;not null"`
	Content   string    `gorm:"type:text;not null"`
	Context   string    `gorm:"type:text"`
	Target    string    `gorm:"size:191"`
	Tags      string    `gorm:"type:text"`
}

func (journalEntryRow) TableName() string { return "journal_entries" }

func journalEntryRowFromRecord(e types.JournalEntry) (journalEntryRow, error) {
	row := journalEntryRow{
		ID:        e.ID,
		SessionID: e.SessionID,
		AgentID:   e.AgentID,
		Timestamp: e.Timestamp,
		Type:      string(e.Type),
		Content:   e.Content,
		Target:    e.Target,
	}
	if e.Context != nil {
		encoded, err := json.Marshal(e.Context)
		if err != nil {
			return journalEntryRow{}, err
		}
		row.Context = string(encoded)
	}
	if len(e.Tags) > 0 {
		encoded, err := json.Marshal(e.Tags)
		if err != nil {
			return journalEntryRow{}, err
		}
		row.Tags = string(encoded)
	}
	return row, nil
}

func (r journalEntryRow) toRecord() (types.JournalEntry, error) {
	entry := types.JournalEntry{
		ID:        r.ID,
		SessionID: r.SessionID,
		AgentID:   r.AgentID,
		Timestamp: r.Timestamp,
		Type:      types.JournalEntryType(r.Type),
		Content:   r.Content,
		Target:    r.Target,
	}
	if r.Context != "" {
		var snap types.ContextSnapshot
		if err := json.Unmarshal([]byte(r.Context), &snap); err != nil {
			return types.JournalEntry{}, err
		}
		entry.Context = &snap
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &entry.Tags); err != nil {
			return types.JournalEntry{}, err
		}
	}
	return entry, nil
}

var _ Store = (*GormStore)(nil)
