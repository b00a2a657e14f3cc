package actionstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sievebot/sieve/models"
)

type GormActionStore struct {
	db *gorm.DB
}

var _ ActionStore = (*GormActionStore)(nil)

func NewGormActionStore(db *gorm.DB) (*GormActionStore, error) {
	if err := db.AutoMigrate(&models.ModerationAction{}); err != nil {
		return nil, err
	}
	return &GormActionStore{db: db}, nil
}

func (s *GormActionStore) AddAction(ctx context.Context, act *models.ModerationAction) error {
	return s.db.WithContext(ctx).Create(act).Error
}

func (s *GormActionStore) ListWindow(ctx context.Context, start, end time.Time, types ...models.ActionType) ([]models.ModerationAction, error) {
	q := s.db.WithContext(ctx).
		Where("issued_at >= ? AND issued_at < ?", start, end)
	if len(types) > 0 {
		q = q.Where("action IN ?", types)
	}
	var out []models.ModerationAction
	err := q.Order("issued_at, id").Find(&out).Error
	return out, err
}

func (s *GormActionStore) ListForMessages(ctx context.Context, messageIDs []uint64, types ...models.ActionType) ([]models.ModerationAction, error) {
	if len(messageIDs) == 0 {
		return []models.ModerationAction{}, nil
	}
	q := s.db.WithContext(ctx).Where("message_id IN ?", messageIDs)
	if len(types) > 0 {
		q = q.Where("action IN ?", types)
	}
	var out []models.ModerationAction
	err := q.Order("issued_at, id").Find(&out).Error
	return out, err
}

func (s *GormActionStore) ListForUser(ctx context.Context, userID uint64) ([]models.ModerationAction, error) {
	var out []models.ModerationAction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at, id").
		Find(&out).Error
	return out, err
}
