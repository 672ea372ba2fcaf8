package sessionstore

import (
	"context"
	"errors"

	"github.com/Skotchmaster/coffee_shop/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the injected key/value persistence used by the cart engine and the
// checkout journal. Entries are scoped to one session id; the last writer
// wins.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
	Clear(ctx context.Context, sessionID string) error
}

type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var entry models.SessionEntry
	err := s.DB.WithContext(ctx).
		Where("session_id = ? AND key = ?", sessionID, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *GormStore) Set(ctx context.Context, sessionID, key, value string) error {
	entry := models.SessionEntry{
		SessionID: sessionID,
		Key:       key,
		Value:     value,
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&entry).Error
}

func (s *GormStore) Delete(ctx context.Context, sessionID, key string) error {
	return s.DB.WithContext(ctx).
		Where("session_id = ? AND key = ?", sessionID, key).
		Delete(&models.SessionEntry{}).Error
}

func (s *GormStore) Clear(ctx context.Context, sessionID string) error {
	return s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.SessionEntry{}).Error
}
