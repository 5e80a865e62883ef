package tracker

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omalk98/tracker-mailer/internal/config"
	"github.com/omalk98/tracker-mailer/internal/models"
	"github.com/omalk98/tracker-mailer/internal/pkg/geoip"
	"github.com/omalk98/tracker-mailer/internal/pkg/mail"
	"github.com/omalk98/tracker-mailer/internal/pkg/useragent"
	"github.com/omalk98/tracker-mailer/internal/repository"
)

// classification of the request's identity after resolution.
type classification int

const (
	classAnonymous classification = iota
	classNew
	classReturning
)

// HumanTrafficFunc decides whether an unidentified request looks like real
// human traffic and deserves a minted identity.
type HumanTrafficFunc func(loc *geoip.Location, bot bool) bool

// DefaultHumanTraffic rejects hosting-provider addresses and bot UAs.
func DefaultHumanTraffic(loc *geoip.Location, bot bool) bool {
	return !loc.Hosting && !bot
}

// Notifier dispatches a visitor notification email.
type Notifier interface {
	Enabled() bool
	SendVisitorNotify(data mail.VisitorNotifyData) error
}

// Options carries the tracking knobs resolved from config.
type Options struct {
	// Window is the trailing duplicate-suppression window.
	Window time.Duration
	// SuppressionPolicy is config.PolicyIdentityAware or config.PolicyIPOnly.
	SuppressionPolicy string
	// Location formats notification timestamps.
	Location *time.Location
	// GoogleAPIKey enables the static map image in notifications.
	GoogleAPIKey string
}

// Request is one beacon hit to process.
type Request struct {
	IP        string
	Token     string // visitor token presented by the client, "" when absent
	Origin    string
	UserAgent string
}

// Result is what the beacon reports back to the client.
type Result struct {
	// VisitorID is set only when a fresh identity was minted this request.
	VisitorID string
}

// Service records visits, resolves visitor identities and gates
// notifications.
type Service struct {
	visits     repository.VisitStore
	identities repository.IdentityStore
	geo        geoip.Resolver
	notifier   Notifier
	opts       Options
	log        *zap.Logger

	now   func() time.Time
	human HumanTrafficFunc
}

func NewService(
	visits repository.VisitStore,
	identities repository.IdentityStore,
	geo geoip.Resolver,
	notifier Notifier,
	opts Options,
	log *zap.Logger,
) *Service {
	if opts.Window <= 0 {
		opts.Window = 10 * time.Minute
	}
	if opts.SuppressionPolicy == "" {
		opts.SuppressionPolicy = config.PolicyIdentityAware
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		visits:     visits,
		identities: identities,
		geo:        geo,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		now:        time.Now,
		human:      DefaultHumanTraffic,
	}
}

// SetHumanTraffic swaps the predicate deciding when to mint an identity.
func (s *Service) SetHumanTraffic(fn HumanTrafficFunc) {
	if fn != nil {
		s.human = fn
	}
}

// Track processes one beacon hit: enrich, resolve identity, append the
// visit, then decide whether to notify. The visit is appended even when
// enrichment or identity resolution come up empty.
func (s *Service) Track(ctx context.Context, req Request) (*Result, error) {
	ts := s.now()
	ip := NormalizeIP(req.IP)

	loc, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		s.log.Warn("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		loc = &geoip.Location{}
	}

	ua := useragent.Parse(req.UserAgent)
	bot := useragent.IsBot(req.UserAgent)

	identity, class, err := s.resolveIdentity(ctx, req.Token, ip, loc, bot, ts)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	// The check runs before the append so the event can never match itself.
	duplicate, err := s.visits.ExistsWithin(ctx, ip, ts, s.opts.Window)
	if err != nil {
		s.log.Error("duplicate check failed", zap.String("ip", ip), zap.Error(err))
		duplicate = false
	}

	event := s.buildEvent(ip, ts, req, loc, ua, identity)
	if err := s.visits.Append(ctx, event); err != nil {
		s.log.Error("append visit failed", zap.String("ip", ip), zap.Error(err))
	}

	if s.shouldNotify(duplicate, class) {
		s.dispatch(ip, ts, req, loc, ua, identity, class)
	} else if duplicate {
		s.log.Warn("visit within suppression window, notification skipped",
			zap.String("ip", ip))
	}

	res := &Result{}
	if class == classNew && identity != nil {
		res.VisitorID = identity.VisitorID
	}
	return res, nil
}

// resolveIdentity applies the identity rules: known token increments, unknown
// token degrades to anonymous, no token mints only for human-looking traffic.
func (s *Service) resolveIdentity(
	ctx context.Context,
	token, ip string,
	loc *geoip.Location,
	bot bool,
	ts time.Time,
) (*models.VisitorIdentity, classification, error) {
	if token != "" {
		identity, err := s.identities.Find(ctx, token)
		if err != nil {
			return nil, classAnonymous, err
		}
		if identity == nil {
			s.log.Warn("invalid visitor token", zap.String("token", token))
			return nil, classAnonymous, nil
		}
		if err := s.identities.Touch(ctx, token, ts); err != nil {
			return nil, classAnonymous, err
		}
		identity.VisitCount++
		identity.LastAccessedAt = ts
		return identity, classReturning, nil
	}

	if !s.human(loc, bot) {
		return nil, classAnonymous, nil
	}

	identity := &models.VisitorIdentity{
		VisitorID:      uuid.NewString(),
		Nickname:       models.DefaultNickname,
		VisitCount:     1,
		CreatedAt:      ts,
		LastAccessedAt: ts,
		FirstIP:        ip,
		FirstCountry:   loc.Country,
		FirstRegion:    loc.RegionName,
		FirstCity:      loc.City,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, classAnonymous, err
	}
	return identity, classNew, nil
}

func (s *Service) shouldNotify(duplicate bool, class classification) bool {
	if !duplicate {
		return true
	}
	if s.opts.SuppressionPolicy == config.PolicyIPOnly {
		return false
	}
	// identity_aware: a duplicate suppresses only requests that carried a
	// resolvable identifier; new and anonymous visitors always notify.
	return class != classReturning
}

func (s *Service) buildEvent(
	ip string,
	ts time.Time,
	req Request,
	loc *geoip.Location,
	ua useragent.Breakdown,
	identity *models.VisitorIdentity,
) *models.VisitEvent {
	event := &models.VisitEvent{
		IP:          ip,
		Timestamp:   ts,
		District:    loc.District,
		City:        loc.City,
		RegionName:  loc.RegionName,
		Country:     loc.Country,
		CountryCode: loc.CountryCode,
		Continent:   loc.Continent,
		Zip:         loc.Zip,
		ISP:         loc.ISP,
		Org:         loc.Org,
		AS:          loc.AS,
		Mobile:      loc.Mobile,
		Proxy:       loc.Proxy,
		Hosting:     loc.Hosting,
		Origin:      req.Origin,
		UA:          req.UserAgent,
		Coordinates: models.Coordinates{Lat: loc.Lat, Lon: loc.Lon},
		OS:          ua.OS,
		Browser:     ua.Browser,
		Engine:      ua.Engine,
		Device:      ua.Device,
		CPU:         ua.CPU,
	}
	if identity != nil {
		id := identity.VisitorID
		event.VisitorID = &id
	}
	return event
}

func (s *Service) dispatch(
	ip string,
	ts time.Time,
	req Request,
	loc *geoip.Location,
	ua useragent.Breakdown,
	identity *models.VisitorIdentity,
	class classification,
) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	data := mail.VisitorNotifyData{
		Nickname:   models.DefaultNickname,
		VisitCount: 1,
		Returning:  class == classReturning,
		IP:         ip,
		City:       loc.City,
		RegionName: loc.RegionName,
		Country:    loc.Country,
		Zip:        loc.Zip,
		ISP:        loc.ISP,
		Org:        loc.Org,
		Timestamp:  ts.In(s.opts.Location).Format("Mon, Jan 2, 2006, 3:04 PM"),
		Origin:     req.Origin,
		Browser:    joinNameVersion(ua.Browser.Name, ua.Browser.Version),
		OS:         joinNameVersion(ua.OS.Name, ua.OS.Version),
		Device:     describeDevice(ua.Device),
		Mobile:     loc.Mobile,
		Proxy:      loc.Proxy,
		Hosting:    loc.Hosting,
		FlagURL:    mail.FlagImageURL(loc.CountryCode),
	}
	if identity != nil {
		data.Nickname = identity.Nickname
		data.VisitCount = identity.VisitCount
	}
	if loc.Lat != nil && loc.Lon != nil {
		data.MapURL = mail.MapImageURL(*loc.Lat, *loc.Lon, s.opts.GoogleAPIKey)
	}

	if err := s.notifier.SendVisitorNotify(data); err != nil {
		s.log.Error("visitor notification failed", zap.String("ip", ip), zap.Error(err))
		return
	}
	s.log.Info("visitor notification sent",
		zap.String("ip", ip),
		zap.String("country", loc.Country),
	)
}

// NormalizeIP strips port and zone and unwraps ipv6-mapped ipv4 addresses,
// mirroring the dedupe key the visit log is queried by.
func NormalizeIP(raw string) string {
	ip := strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if i := strings.IndexByte(ip, '%'); i >= 0 {
		ip = ip[:i]
	}
	if i := strings.LastIndexByte(ip, ':'); i >= 0 && strings.Contains(ip[i+1:], ".") {
		ip = ip[i+1:]
	}
	return ip
}

func joinNameVersion(name, version string) string {
	switch {
	case name == "" && version == "":
		return "-"
	case version == "":
		return name
	default:
		return name + " " + version
	}
}

func describeDevice(d models.DeviceInfo) string {
	parts := make([]string, 0, 3)
	if d.Vendor != "" {
		parts = append(parts, d.Vendor)
	}
	if d.Model != "" {
		parts = append(parts, d.Model)
	}
	label := strings.Join(parts, " ")
	if label == "" {
		return d.Type
	}
	if d.Type != "" {
		return fmt.Sprintf("%s (%s)", label, d.Type)
	}
	return label
}
