package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/omalk98/tracker-mailer/internal/config"
	"github.com/omalk98/tracker-mailer/internal/models"
	"github.com/omalk98/tracker-mailer/internal/pkg/geoip"
	"github.com/omalk98/tracker-mailer/internal/pkg/mail"
)

var testNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

const chromeOnWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func floatPtr(v float64) *float64 { return &v }

func canadaLocation() *geoip.Location {
	return &geoip.Location{
		Continent:   "North America",
		Country:     "Canada",
		CountryCode: "CA",
		RegionName:  "Quebec",
		City:        "Montreal",
		Zip:         "H2X",
		Lat:         floatPtr(45.5019),
		Lon:         floatPtr(-73.5674),
		ISP:         "Le Reseau",
	}
}

type fixture struct {
	visits     *MockVisitStore
	identities *MockIdentityStore
	geo        *MockGeoResolver
	notifier   *MockNotifier
	svc        *Service
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		visits:     new(MockVisitStore),
		identities: new(MockIdentityStore),
		geo:        new(MockGeoResolver),
		notifier:   new(MockNotifier),
	}
	f.svc = NewService(f.visits, f.identities, f.geo, f.notifier, opts, zap.NewNop())
	f.svc.now = func() time.Time { return testNow }
	f.notifier.On("Enabled").Return(true).Maybe()
	return f
}

func TestTrack_MintsIdentityAndNotifies(t *testing.T) {
	f := newFixture(Options{})

	f.geo.On("Lookup", mock.Anything, "203.0.113.5").Return(canadaLocation(), nil)
	f.identities.On("Create", mock.Anything, mock.MatchedBy(func(id *models.VisitorIdentity) bool {
		return id.VisitCount == 1 &&
			id.Nickname == models.DefaultNickname &&
			id.FirstIP == "203.0.113.5" &&
			id.FirstCountry == "Canada" &&
			id.FirstCity == "Montreal"
	})).Return(nil).Once()
	f.visits.On("ExistsWithin", mock.Anything, "203.0.113.5", testNow, 10*time.Minute).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		Origin:    "example.com/portfolio",
		UserAgent: chromeOnWindowsUA,
	})

	assert.NoError(t, err)
	_, parseErr := uuid.Parse(res.VisitorID)
	assert.NoError(t, parseErr, "beacon should return the freshly minted id")

	data := f.notifier.Calls[len(f.notifier.Calls)-1].Arguments.Get(0).(mail.VisitorNotifyData)
	assert.Equal(t, "Canada", data.Country)
	assert.Equal(t, "Montreal", data.City)
	assert.Equal(t, int64(1), data.VisitCount)
	assert.False(t, data.Returning)
	assert.Contains(t, data.FlagURL, "flagcdn.com/24x18/ca.png")

	f.identities.AssertExpectations(t)
	f.visits.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestTrack_NoMintForBotUA(t *testing.T) {
	f := newFixture(Options{})

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.MatchedBy(func(e *models.VisitEvent) bool {
		return e.VisitorID == nil
	})).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		UserAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)",
	})

	assert.NoError(t, err)
	assert.Empty(t, res.VisitorID)
	f.identities.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.visits.AssertExpectations(t)
}

func TestTrack_NoMintForHostingAddress(t *testing.T) {
	f := newFixture(Options{})

	loc := canadaLocation()
	loc.Hosting = true
	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(loc, nil)
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		UserAgent: chromeOnWindowsUA,
	})

	assert.NoError(t, err)
	assert.Empty(t, res.VisitorID)
	f.identities.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.visits.AssertExpectations(t)
}

func TestTrack_CustomHumanTrafficPredicate(t *testing.T) {
	f := newFixture(Options{})
	f.svc.SetHumanTraffic(func(loc *geoip.Location, bot bool) bool { return false })

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{IP: "203.0.113.5", UserAgent: chromeOnWindowsUA})

	assert.NoError(t, err)
	assert.Empty(t, res.VisitorID)
	f.identities.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTrack_InvalidTokenDegradesToAnonymous(t *testing.T) {
	f := newFixture(Options{})

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.identities.On("Find", mock.Anything, "no-such-token").Return(nil, nil).Once()
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.MatchedBy(func(e *models.VisitEvent) bool {
		return e.VisitorID == nil
	})).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		Token:     "no-such-token",
		UserAgent: chromeOnWindowsUA,
	})

	assert.NoError(t, err)
	assert.Empty(t, res.VisitorID)
	f.identities.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.identities.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
	f.visits.AssertExpectations(t)
}

func TestTrack_ReturningVisitorIncrements(t *testing.T) {
	f := newFixture(Options{})
	token := uuid.NewString()

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.identities.On("Find", mock.Anything, token).Return(&models.VisitorIdentity{
		VisitorID:  token,
		Nickname:   "omar",
		VisitCount: 4,
	}, nil).Once()
	f.identities.On("Touch", mock.Anything, token, testNow).Return(nil).Once()
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.MatchedBy(func(e *models.VisitEvent) bool {
		return e.VisitorID != nil && *e.VisitorID == token
	})).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		Token:     token,
		UserAgent: chromeOnWindowsUA,
	})

	assert.NoError(t, err)
	assert.Empty(t, res.VisitorID, "returning visitors never get a new id")

	data := f.notifier.Calls[len(f.notifier.Calls)-1].Arguments.Get(0).(mail.VisitorNotifyData)
	assert.True(t, data.Returning)
	assert.Equal(t, int64(5), data.VisitCount)
	assert.Equal(t, "omar", data.Nickname)

	f.identities.AssertExpectations(t)
	f.visits.AssertExpectations(t)
}

func TestTrack_IdentityAwareSuppressesOnlyIdentifiedDuplicates(t *testing.T) {
	token := uuid.NewString()

	t.Run("returning duplicate suppressed", func(t *testing.T) {
		f := newFixture(Options{SuppressionPolicy: config.PolicyIdentityAware, Window: 5 * time.Minute})
		f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
		f.identities.On("Find", mock.Anything, token).Return(&models.VisitorIdentity{
			VisitorID:  token,
			Nickname:   models.DefaultNickname,
			VisitCount: 1,
		}, nil)
		f.identities.On("Touch", mock.Anything, token, testNow).Return(nil)
		f.visits.On("ExistsWithin", mock.Anything, "203.0.113.5", testNow, 5*time.Minute).Return(true, nil)
		f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()

		res, err := f.svc.Track(context.Background(), Request{
			IP:        "203.0.113.5",
			Token:     token,
			UserAgent: chromeOnWindowsUA,
		})

		assert.NoError(t, err)
		assert.Empty(t, res.VisitorID)
		f.visits.AssertExpectations(t)
		f.notifier.AssertNotCalled(t, "SendVisitorNotify", mock.Anything)
	})

	t.Run("anonymous duplicate still notifies", func(t *testing.T) {
		f := newFixture(Options{SuppressionPolicy: config.PolicyIdentityAware})
		loc := canadaLocation()
		loc.Hosting = true // no identity minted
		f.geo.On("Lookup", mock.Anything, mock.Anything).Return(loc, nil)
		f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
		f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

		_, err := f.svc.Track(context.Background(), Request{IP: "203.0.113.5", UserAgent: chromeOnWindowsUA})

		assert.NoError(t, err)
		f.notifier.AssertExpectations(t)
	})
}

func TestTrack_IPOnlySuppressesEveryDuplicate(t *testing.T) {
	f := newFixture(Options{SuppressionPolicy: config.PolicyIPOnly})

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.identities.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	f.visits.On("Append", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := f.svc.Track(context.Background(), Request{IP: "203.0.113.5", UserAgent: chromeOnWindowsUA})

	assert.NoError(t, err)
	assert.NotEmpty(t, res.VisitorID, "minting is independent of suppression")
	f.visits.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "SendVisitorNotify", mock.Anything)
}

func TestTrack_GeoFailureStillRecordsVisit(t *testing.T) {
	f := newFixture(Options{})

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	f.identities.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.visits.On("ExistsWithin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.visits.On("Append", mock.Anything, mock.MatchedBy(func(e *models.VisitEvent) bool {
		return e.Country == "" && e.IP == "203.0.113.5"
	})).Return(nil).Once()
	f.notifier.On("SendVisitorNotify", mock.Anything).Return(nil).Once()

	_, err := f.svc.Track(context.Background(), Request{IP: "203.0.113.5", UserAgent: chromeOnWindowsUA})

	assert.NoError(t, err)
	f.visits.AssertExpectations(t)
}

func TestTrack_IdentityStoreFailureSurfaces(t *testing.T) {
	f := newFixture(Options{})

	f.geo.On("Lookup", mock.Anything, mock.Anything).Return(canadaLocation(), nil)
	f.identities.On("Find", mock.Anything, "tok").Return(nil, errors.New("connection reset"))

	_, err := f.svc.Track(context.Background(), Request{
		IP:        "203.0.113.5",
		Token:     "tok",
		UserAgent: chromeOnWindowsUA,
	})

	assert.Error(t, err)
	f.visits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestNormalizeIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"203.0.113.5", "203.0.113.5"},
		{"203.0.113.5:54321", "203.0.113.5"},
		{"::ffff:203.0.113.5", "203.0.113.5"},
		{"[::1]:8080", "::1"},
		{"fe80::1%eth0", "fe80::1"},
		{" 203.0.113.5 ", "203.0.113.5"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeIP(tc.in), "input %q", tc.in)
	}
}
