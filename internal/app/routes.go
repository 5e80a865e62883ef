package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omalk98/tracker-mailer/internal/middleware"
	"github.com/omalk98/tracker-mailer/internal/modules/geomap"
	"github.com/omalk98/tracker-mailer/internal/modules/tracker"
	"github.com/omalk98/tracker-mailer/internal/pkg/response"
)

func (a *App) registerRoutes(trackerSvc *tracker.Service, geomapSvc *geomap.Service) {
	authMW := middleware.SharedSecret(a.cfg.Auth.Secret, a.logger)

	a.router.GET("/ping", func(c *gin.Context) {
		response.OK(c, gin.H{"message": "pong"})
	})

	geomap.NewHandler(geomapSvc).RegisterRoutes(&a.router.RouterGroup, authMW)

	// Every other GET is a beacon hit, whatever the path.
	beacon := tracker.NewHandler(trackerSvc, a.logger)
	a.router.NoRoute(beaconMethodGuard, authMW, beacon.Beacon)
}

func beaconMethodGuard(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		response.NotFound(c)
	}
}
