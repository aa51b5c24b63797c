package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/JPaulGrayson/QuackQuack/internal/db"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// GormStore is the durable Store implementation: an append-only
// audit_entries table plus an archived_threads table, grounded on the pack's
// peerRow row/TableName/converter pattern.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(logger *log.Logger, driver, dsn string) (*GormStore, error) {
	gdb, err := db.OpenGorm(logger, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := gdb.AutoMigrate(&auditEntryRow{}, &archivedThreadRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return &GormStore{db: gdb}, nil
}

func (s *GormStore) Append(ctx context.Context, entry types.AuditEntry) error {
	row, err := auditEntryRowFromRecord(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	query := s.db.WithContext(ctx).Model(&auditEntryRow{}).Order("id desc")
	if filter.Action != "" {
		query = query.Where("action = ?", string(filter.Action))
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("timestamp <= ?", filter.Until)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []auditEntryRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	out := make([]types.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (types.AuditStats, error) {
	stats := types.AuditStats{TopActions: map[string]int64{}, TopActors: map[string]int64{}}

	if err := s.db.WithContext(ctx).Model(&auditEntryRow{}).Count(&stats.Total).Error; err != nil {
		return types.AuditStats{}, fmt.Errorf("count audit entries: %w", err)
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.db.WithContext(ctx).Model(&auditEntryRow{}).Where("timestamp >= ?", cutoff).Count(&stats.Last24h).Error; err != nil {
		return types.AuditStats{}, fmt.Errorf("count recent audit entries: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var actionBuckets []bucket
	if err := s.db.WithContext(ctx).Model(&auditEntryRow{}).
		Select("action as key, count(*) as count").Group("action").Scan(&actionBuckets).Error; err != nil {
		return types.AuditStats{}, fmt.Errorf("aggregate top actions: %w", err)
	}
	for _, b := range actionBuckets {
		stats.TopActions[b.Key] = b.Count
	}

	var actorBuckets []bucket
	if err := s.db.WithContext(ctx).Model(&auditEntryRow{}).
		Select("actor as key, count(*) as count").Group("actor").Scan(&actorBuckets).Error; err != nil {
		return types.AuditStats{}, fmt.Errorf("aggregate top actors: %w", err)
	}
	for _, b := range actorBuckets {
		stats.TopActors[b.Key] = b.Count
	}

	return stats, nil
}

func (s *GormStore) ArchiveThread(ctx context.Context, threadID string, messages []types.Message, metadata map[string]any) error {
	participants := map[string]struct{}{}
	var first, last time.Time
	for i, m := range messages {
		participants[m.From] = struct{}{}
		participants[m.To] = struct{}{}
		if i == 0 || m.CreatedAt.Before(first) {
			first = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	names := make([]string, 0, len(participants))
	for p := range participants {
		names = append(names, p)
	}

	archived := types.ArchivedThread{
		ID:           types.NewID(),
		ThreadID:     threadID,
		Participants: names,
		FirstMessage: first,
		LastMessage:  last,
		Messages:     messages,
		Metadata:     metadata,
		ArchivedAt:   time.Now().UTC(),
	}
	row, err := archivedThreadRowFromRecord(archived)
	if err != nil {
		return fmt.Errorf("encode archived thread: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("archive thread: %w", err)
	}
	return nil
}

func (s *GormStore) GetArchivedThread(ctx context.Context, threadID string) (types.ArchivedThread, error) {
	var row archivedThreadRow
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("archived_at desc").Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.ArchivedThread{}, ErrArchiveNotFound
		}
		return types.ArchivedThread{}, fmt.Errorf("get archived thread: %w", err)
	}
	return row.toRecord()
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

var _ Store = (*GormStore)(nil)

type auditEntryRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time
	Action     string `gorm:"size:64;index"`
	Actor      string `gorm:"size:191;index"`
	TargetType string `gorm:"size:64;index"`
	TargetID   string `gorm:"size:191;index"`
	Details    string `gorm:"type:text"`
	Source     string `gorm:"size:64"`
}

func (auditEntryRow) TableName() string { return "audit_entries" }

func auditEntryRowFromRecord(e types.AuditEntry) (auditEntryRow, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return auditEntryRow{}, err
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return auditEntryRow{
		Timestamp:  ts,
		Action:     string(e.Action),
		Actor:      e.Actor,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    string(details),
		Source:     e.Source,
	}, nil
}

func (r auditEntryRow) toRecord() (types.AuditEntry, error) {
	var details map[string]any
	if len(r.Details) > 0 {
		if err := json.Unmarshal([]byte(r.Details), &details); err != nil {
			return types.AuditEntry{}, err
		}
	}
	return types.AuditEntry{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Action:     types.AuditAction(r.Action),
		Actor:      r.Actor,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Details:    details,
		Source:     r.Source,
	}, nil
}

type archivedThreadRow struct {
	ID           string `gorm:"primaryKey;size:191"`
	ThreadID     string `gorm:"size:191;index"`
	Participants string `gorm:"type:text"`
	FirstMessage time.Time
	LastMessage  time.Time
	Messages     string `gorm:"type:text"`
	Metadata     string `gorm:"type:text"`
	ArchivedAt   time.Time
}

func (archivedThreadRow) TableName() string { return "archived_threads" }

func archivedThreadRowFromRecord(a types.ArchivedThread) (archivedThreadRow, error) {
	participants, err := json.Marshal(a.Participants)
	if err != nil {
		return archivedThreadRow{}, err
	}
	messages, err := json.Marshal(a.Messages)
	if err != nil {
		return archivedThreadRow{}, err
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return archivedThreadRow{}, err
	}
	return archivedThreadRow{
		ID:           a.ID,
		ThreadID:     a.ThreadID,
		Participants: string(participants),
		FirstMessage: a.FirstMessage,
		LastMessage:  a.LastMessage,
		Messages:     string(messages),
		Metadata:     string(metadata),
		ArchivedAt:   a.ArchivedAt,
	}, nil
}

func (r archivedThreadRow) toRecord() (types.ArchivedThread, error) {
	var participants []string
	if err := json.Unmarshal([]byte(r.Participants), &participants); err != nil {
		return types.ArchivedThread{}, err
	}
	var messages []types.Message
	if err := json.Unmarshal([]byte(r.Messages), &messages); err != nil {
		return types.ArchivedThread{}, err
	}
	var metadata map[string]any
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal([]byte(r.Metadata), &metadata); err != nil {
			return types.ArchivedThread{}, err
		}
	}
	return types.ArchivedThread{
		ID:           r.ID,
		ThreadID:     r.ThreadID,
		Participants: participants,
		FirstMessage: r.FirstMessage,
		LastMessage:  r.LastMessage,
		Messages:     messages,
		Metadata:     metadata,
		ArchivedAt:   r.ArchivedAt,
	}, nil
}
