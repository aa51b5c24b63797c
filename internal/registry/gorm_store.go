package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JPaulGrayson/QuackQuack/internal/db"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// GormStore is the durable Store implementation, grounded on the pack's
// peerRow/GormPeerStore pattern (row struct + TableName + clause.OnConflict
// upsert, converters between row and domain type).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a driver-backed database and migrates the agents table.
func NewGormStore(logger *log.Logger, driver, dsn string) (*GormStore, error) {
	gdb, err := db.OpenGorm(logger, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry store: %w", err)
	}
	store := &GormStore{db: gdb}
	if err := gdb.AutoMigrate(&agentRow{}); err != nil {
		return nil, fmt.Errorf("migrate registry store: %w", err)
	}
	return store, nil
}

func (s *GormStore) Create(ctx context.Context, agent types.Agent) (types.Agent, error) {
	agent.ID = agent.Identifier()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	row, err := agentRowFromRecord(agent)
	if err != nil {
		return types.Agent{}, fmt.Errorf("encode agent: %w", err)
	}
	var existing agentRow
	if err := s.db.WithContext(ctx).Where("id = ?", row.ID).Take(&existing).Error; err == nil {
		return types.Agent{}, ErrConflict
	} else if !isNotFound(err) {
		return types.Agent{}, fmt.Errorf("check existing agent: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Get(ctx context.Context, id string) (types.Agent, error) {
	var row agentRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return types.Agent{}, ErrNotFound
		}
		return types.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Update(ctx context.Context, agent types.Agent) (types.Agent, error) {
	agent.ID = agent.Identifier()
	row, err := agentRowFromRecord(agent)
	if err != nil {
		return types.Agent{}, fmt.Errorf("encode agent: %w", err)
	}
	row.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&agentRow{}).Where("id = ?", row.ID).Updates(row)
	if res.Error != nil {
		return types.Agent{}, fmt.Errorf("update agent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Agent{}, ErrNotFound
	}
	return s.Get(ctx, row.ID)
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&agentRow{})
	if res.Error != nil {
		return fmt.Errorf("delete agent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]types.Agent, error) {
	query := s.db.WithContext(ctx).Model(&agentRow{})
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Public != nil {
		query = query.Where("public = ?", *filter.Public)
	}
	var rows []agentRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]types.Agent, 0, len(rows))
	for _, row := range rows {
		agent := row.toRecord()
		if filter.Capability != "" && !hasCapability(agent.Capabilities, filter.Capability) {
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}

func (s *GormStore) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&agentRow{}).Where("id = ?", id).Updates(map[string]any{
		"last_seen":  at,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update last activity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context, id string) (types.Agent, error) {
	now := time.Now().UTC()
	if err := s.UpdateLastActivity(ctx, id, now); err != nil {
		return types.Agent{}, err
	}
	return s.Get(ctx, id)
}

func (s *GormStore) ShouldAutoApprove(ctx context.Context, from, to string) (bool, error) {
	fromAgent, fromErr := s.Get(ctx, rootPlatform(from))
	toAgent, toErr := s.Get(ctx, rootPlatform(to))
	return decideAutoApprove(fromAgent, fromErr == nil, toAgent, toErr == nil), nil
}

func (s *GormStore) EnsureSeeded(ctx context.Context) error {
	for _, seed := range defaultSeeds() {
		seed.CreatedAt = time.Now().UTC()
		row, err := agentRowFromRecord(seed)
		if err != nil {
			return fmt.Errorf("encode seed %s: %w", seed.ID, err)
		}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed agent %s: %w", seed.ID, err)
		}
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

func isNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}

var _ Store = (*GormStore)(nil)

type agentRow struct {
	ID       string `gorm:"primaryKey;size:191"`
	Name     string `gorm:"size:191"`
	Platform string `gorm:"size:191;index"`

	Capabilities string `gorm:"type:text"`
	Tags         string `gorm:"type:text"`
	Category     string `gorm:"size:32"`

	RequiresApproval   bool
	AutoApproveOnCheck bool
	NotificationMode   string `gorm:"size:32"`

	WebhookURL    string `gorm:"size:512"`
	WebhookSecret string `gorm:"size:256"`
	PlatformURL   string `gorm:"size:512"`
	NotifyPrompt  string `gorm:"type:text"`

	Public  bool
	OwnerID string `gorm:"size:191"`

	CreatedAt time.Time
	LastSeen  time.Time
	UpdatedAt time.Time
}

func (agentRow) TableName() string {
	return "agents"
}

func agentRowFromRecord(a types.Agent) (agentRow, error) {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return agentRow{}, err
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return agentRow{}, err
	}
	return agentRow{
		ID:                 a.Identifier(),
		Name:                a.Name,
		Platform:            a.Platform,
		Capabilities:        string(caps),
		Tags:                string(tags),
		Category:            string(a.Category),
		RequiresApproval:    a.RequiresApproval,
		AutoApproveOnCheck:  a.AutoApproveOnCheck,
		NotificationMode:    string(a.NotificationMode),
		WebhookURL:          a.WebhookURL,
		WebhookSecret:       a.WebhookSecret,
		PlatformURL:         a.PlatformURL,
		NotifyPrompt:        a.NotifyPrompt,
		Public:              a.Public,
		OwnerID:             a.OwnerID,
		CreatedAt:           a.CreatedAt,
		LastSeen:            a.LastSeen,
		UpdatedAt:           time.Now().UTC(),
	}, nil
}

func (r agentRow) toRecord() types.Agent {
	var caps, tags []string
	_ = json.Unmarshal([]byte(r.Capabilities), &caps)
	_ = json.Unmarshal([]byte(r.Tags), &tags)
	return types.Agent{
		ID:                 r.ID,
		Name:               r.Name,
		Platform:           r.Platform,
		Capabilities:       caps,
		Tags:               tags,
		Category:           types.AgentCategory(r.Category),
		RequiresApproval:   r.RequiresApproval,
		AutoApproveOnCheck: r.AutoApproveOnCheck,
		NotificationMode:   types.NotificationMode(r.NotificationMode),
		WebhookURL:         r.WebhookURL,
		WebhookSecret:      r.WebhookSecret,
		PlatformURL:        r.PlatformURL,
		NotifyPrompt:       r.NotifyPrompt,
		Public:             r.Public,
		OwnerID:            r.OwnerID,
		CreatedAt:          r.CreatedAt,
		LastSeen:           r.LastSeen,
	}
}
