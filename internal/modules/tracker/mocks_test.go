package tracker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/omalk98/tracker-mailer/internal/models"
	"github.com/omalk98/tracker-mailer/internal/pkg/geoip"
	"github.com/omalk98/tracker-mailer/internal/pkg/mail"
)

type MockVisitStore struct {
	mock.Mock
}

func (m *MockVisitStore) Append(ctx context.Context, event *models.VisitEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockVisitStore) ExistsWithin(ctx context.Context, ip string, before time.Time, window time.Duration) (bool, error) {
	args := m.Called(ctx, ip, before, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockVisitStore) ListLocated(ctx context.Context) ([]models.VisitEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VisitEvent), args.Error(1)
}

func (m *MockVisitStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) Find(ctx context.Context, token string) (*models.VisitorIdentity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VisitorIdentity), args.Error(1)
}

func (m *MockIdentityStore) Create(ctx context.Context, identity *models.VisitorIdentity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockIdentityStore) Touch(ctx context.Context, token string, at time.Time) error {
	args := m.Called(ctx, token, at)
	return args.Error(0)
}

type MockGeoResolver struct {
	mock.Mock
}

func (m *MockGeoResolver) Lookup(ctx context.Context, ip string) (*geoip.Location, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geoip.Location), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockNotifier) SendVisitorNotify(data mail.VisitorNotifyData) error {
	args := m.Called(data)
	return args.Error(0)
}
