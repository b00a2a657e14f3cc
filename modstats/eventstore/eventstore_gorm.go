package eventstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sievebot/sieve/models"
)

type GormEventStore struct {
	db *gorm.DB
}

var _ EventStore = (*GormEventStore)(nil)

func NewGormEventStore(db *gorm.DB) (*GormEventStore, error) {
	if err := db.AutoMigrate(&models.DetectionEvent{}, &models.Message{}); err != nil {
		return nil, err
	}
	return &GormEventStore{db: db}, nil
}

func (s *GormEventStore) AddEvent(ctx context.Context, evt *models.DetectionEvent) error {
	return s.db.WithContext(ctx).Create(evt).Error
}

func (s *GormEventStore) ListWindow(ctx context.Context, start, end time.Time) ([]models.DetectionEvent, error) {
	var out []models.DetectionEvent
	err := s.db.WithContext(ctx).
		Where("detected_at >= ? AND detected_at < ?", start, end).
		Order("detected_at, id").
		Find(&out).Error
	return out, err
}

func (s *GormEventStore) ListManualForMessages(ctx context.Context, messageIDs []uint64) ([]models.DetectionEvent, error) {
	if len(messageIDs) == 0 {
		return []models.DetectionEvent{}, nil
	}
	var out []models.DetectionEvent
	err := s.db.WithContext(ctx).
		Where("message_id IN ? AND detection_source = ?", messageIDs, models.SourceManual).
		Order("detected_at, id").
		Find(&out).Error
	return out, err
}

func (s *GormEventStore) ListForMessage(ctx context.Context, messageID uint64) ([]models.DetectionEvent, error) {
	var out []models.DetectionEvent
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("detected_at, id").
		Find(&out).Error
	return out, err
}

func (s *GormEventStore) GetMessage(ctx context.Context, messageID uint64) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *GormEventStore) PutMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Save(msg).Error
}

func (s *GormEventStore) DisableTraining(ctx context.Context, messageID uint64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.DetectionEvent{}).
		Where("message_id = ? AND used_for_training = ?", messageID, true).
		Update("used_for_training", false)
	return res.RowsAffected, res.Error
}

func (s *GormEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("detected_at < ?", cutoff).
		Delete(&models.DetectionEvent{})
	return res.RowsAffected, res.Error
}
