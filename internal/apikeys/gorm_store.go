package apikeys

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/JPaulGrayson/QuackQuack/internal/db"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// GormStore is the production API key store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a GORM-backed GormStore against driver/dsn and
// migrates its row type.
func NewGormStore(logger *log.Logger, driver, dsn string) (*GormStore, error) {
	handle, err := db.OpenGorm(logger, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := handle.AutoMigrate(&apiKeyRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: handle}, nil
}

func (s *GormStore) Create(ctx context.Context, ownerID string, permissions []types.APIKeyPermission) (types.APIKey, string, error) {
	token, hashed, err := GenerateToken()
	if err != nil {
		return types.APIKey{}, "", err
	}
	key := types.APIKey{
		ID:          types.NewID(),
		HashedKey:   hashed,
		OwnerID:     ownerID,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
	}
	row, err := apiKeyRowFromRecord(key)
	if err != nil {
		return types.APIKey{}, "", err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.APIKey{}, "", err
	}
	return key, token, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (types.APIKey, error) {
	var row apiKeyRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.APIKey{}, ErrNotFound
		}
		return types.APIKey{}, err
	}
	return row.toRecord()
}

func (s *GormStore) List(ctx context.Context) ([]types.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.APIKey, 0, len(rows))
	for _, row := range rows {
		key, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}

func (s *GormStore) Revoke(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&apiKeyRow{}).Where("id = ?", id).Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) VerifyToken(ctx context.Context, token string) (types.APIKey, error) {
	hashed := hashToken(token)
	var row apiKeyRow
	if err := s.db.WithContext(ctx).First(&row, "hashed_key = ? AND revoked = ?", hashed, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.APIKey{}, ErrNotFound
		}
		return types.APIKey{}, err
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&apiKeyRow{}).Where("id = ?", row.ID).Update("last_used_at", now).Error; err != nil {
		return types.APIKey{}, err
	}
	row.LastUsedAt = &now
	return row.toRecord()
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*GormStore)(nil)

// apiKeyRow is the GORM row shape; Permissions is JSON-marshaled since no
// example repo carries a driver-agnostic SQL array/JSON column type, so a
// marshaled text column is the idiomatic fallback (same pattern as the
// registry/audit/recorder/convo row types).
type apiKeyRow struct {
	ID          string `gorm:"primaryKey"`
	HashedKey   string `gorm:"uniqueIndex"`
	OwnerID     string `gorm:"index"`
	Permissions string `gorm:"type:text"`
	Revoked     bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

func (apiKeyRow) TableName() string { return "api_keys" }

func apiKeyRowFromRecord(k types.APIKey) (apiKeyRow, error) {
	permissions, err := json.Marshal(k.Permissions)
	if err != nil {
		return apiKeyRow{}, err
	}
	return apiKeyRow{
		ID:          k.ID,
		HashedKey:   k.HashedKey,
		OwnerID:     k.OwnerID,
		Permissions: string(permissions),
		Revoked:     k.Revoked,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
	}, nil
}

func (r apiKeyRow) toRecord() (types.APIKey, error) {
	var permissions []types.APIKeyPermission
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &permissions); err != nil {
			return types.APIKey{}, err
		}
	}
	return types.APIKey{
		ID:          r.ID,
		HashedKey:   r.HashedKey,
		OwnerID:     r.OwnerID,
		Permissions: permissions,
		Revoked:     r.Revoked,
		CreatedAt:   r.CreatedAt,
		LastUsedAt:  r.LastUsedAt,
	}, nil
}
