package repository

import (
	"context"
	"time"

	"github.com/omalk98/tracker-mailer/internal/models"
	"gorm.io/gorm"
)

// VisitStore persists the append-only visit log.
type VisitStore interface {
	// Append inserts one visit event. Never updates existing rows.
	Append(ctx context.Context, event *models.VisitEvent) error
	// ExistsWithin reports whether a visit from ip exists with a timestamp
	// inside the trailing window strictly before the given instant.
	ExistsWithin(ctx context.Context, ip string, before time.Time, window time.Duration) (bool, error)
	// ListLocated returns all visits carrying coordinates and a country,
	// oldest first.
	ListLocated(ctx context.Context) ([]models.VisitEvent, error)
	// DeleteOlderThan removes visits recorded before cutoff and returns the
	// number of rows deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type visitStore struct {
	db *gorm.DB
}

// NewVisitStore returns a MySQL-backed VisitStore.
func NewVisitStore(db *gorm.DB) VisitStore {
	return &visitStore{db: db}
}

func (s *visitStore) Append(ctx context.Context, event *models.VisitEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *visitStore) ExistsWithin(ctx context.Context, ip string, before time.Time, window time.Duration) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.VisitEvent{}).
		Where("ip = ? AND timestamp >= ? AND timestamp < ?", ip, before.Add(-window), before).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *visitStore) ListLocated(ctx context.Context) ([]models.VisitEvent, error) {
	var events []models.VisitEvent
	err := s.db.WithContext(ctx).
		Where("coord_lat IS NOT NULL AND coord_lon IS NOT NULL AND country <> ''").
		Order("timestamp ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *visitStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.VisitEvent{})
	return result.RowsAffected, result.Error
}
