package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omalk98/tracker-mailer/internal/config"
	"github.com/omalk98/tracker-mailer/internal/database"
	"github.com/omalk98/tracker-mailer/internal/middleware"
	"github.com/omalk98/tracker-mailer/internal/modules/geomap"
	"github.com/omalk98/tracker-mailer/internal/modules/tracker"
	pkgcron "github.com/omalk98/tracker-mailer/internal/pkg/cron"
	"github.com/omalk98/tracker-mailer/internal/pkg/geoip"
	pkgmail "github.com/omalk98/tracker-mailer/internal/pkg/mail"
	pkgredis "github.com/omalk98/tracker-mailer/internal/pkg/redis"
	"github.com/omalk98/tracker-mailer/internal/repository"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: config → DB → collaborators → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	loc, err := applyRuntimeSettings(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var cache *pkgredis.Client
	if cfg.Map.CacheTTL() > 0 {
		cache, err = pkgredis.Connect(cfg.Redis.URLValue())
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	visits := repository.NewVisitStore(db)
	identities := repository.NewIdentityStore(db)
	geo := geoip.New(cfg.GeoIP.Endpoint, cfg.GeoIP.Timeout())
	sender := pkgmail.New(mailConfig(cfg.Mail))

	trackerSvc := tracker.NewService(visits, identities, geo, sender, tracker.Options{
		Window:            cfg.Tracker.Window(),
		SuppressionPolicy: cfg.Tracker.SuppressionPolicy,
		Location:          loc,
		GoogleAPIKey:      cfg.Map.GoogleAPIKey,
	}, logger)

	geomapSvc := geomap.NewService(visits, cache, geomap.Options{
		OriginLat: cfg.Map.OriginLat,
		OriginLon: cfg.Map.OriginLon,
		CacheTTL:  cfg.Map.CacheTTL(),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New(logger)
	registerCronJobs(sched, visits, cfg, logger)
	sched.Start(ctx)

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		logger: logger,
		cancel: cancel,
		sched:  sched,
	}
	app.registerRoutes(trackerSvc, geomapSvc)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }

// applyRuntimeSettings resolves the configured timezone and makes it the
// process default, so formatted timestamps match the operator's locale.
func applyRuntimeSettings(cfg *config.AppConfig) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return loc, nil
}

func mailConfig(cfg config.MailConfig) pkgmail.Config {
	return pkgmail.Config{
		Enable:    cfg.Enable,
		Host:      cfg.Host,
		Port:      cfg.Port,
		User:      cfg.User,
		Pass:      cfg.Pass,
		From:      cfg.From,
		To:        cfg.To,
		ReplyTo:   cfg.ReplyTo,
		UseResend: cfg.UseResend,
		ResendKey: cfg.ResendKey,
	}
}
