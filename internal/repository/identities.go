package repository

import (
	"context"
	"errors"
	"time"

	"github.com/omalk98/tracker-mailer/internal/models"
	"gorm.io/gorm"
)

// IdentityStore persists visitor identities keyed by their opaque token.
type IdentityStore interface {
	// Find returns the identity for token, or (nil, nil) when unknown.
	Find(ctx context.Context, token string) (*models.VisitorIdentity, error)
	// Create inserts a freshly minted identity.
	Create(ctx context.Context, identity *models.VisitorIdentity) error
	// Touch increments the visit counter and advances lastAccessedAt in a
	// single UPDATE, so concurrent hits cannot lose increments.
	Touch(ctx context.Context, token string, at time.Time) error
}

type identityStore struct {
	db *gorm.DB
}

// NewIdentityStore returns a MySQL-backed IdentityStore.
func NewIdentityStore(db *gorm.DB) IdentityStore {
	return &identityStore{db: db}
}

func (s *identityStore) Find(ctx context.Context, token string) (*models.VisitorIdentity, error) {
	var identity models.VisitorIdentity
	err := s.db.WithContext(ctx).
		Where("visitor_id = ?", token).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *identityStore) Create(ctx context.Context, identity *models.VisitorIdentity) error {
	return s.db.WithContext(ctx).Create(identity).Error
}

func (s *identityStore) Touch(ctx context.Context, token string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.VisitorIdentity{}).
		Where("visitor_id = ?", token).
		Updates(map[string]interface{}{
			"visit_count":      gorm.Expr("visit_count + 1"),
			"last_accessed_at": at,
		}).Error
}
