package tracker

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omalk98/tracker-mailer/internal/middleware"
	"github.com/omalk98/tracker-mailer/internal/pkg/response"
)

// Handler serves the catch-all beacon endpoint.
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Beacon handles any tracked hit. It always answers 200: a failure inside
// tracking is the operator's problem, not the visitor's.
func (h *Handler) Beacon(c *gin.Context) {
	res, err := h.svc.Track(c.Request.Context(), Request{
		IP:        c.ClientIP(),
		Token:     middleware.VisitorToken(c),
		Origin:    requestOrigin(c),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error("track failed", zap.Error(err))
		response.OK(c, nil)
		return
	}
	if res.VisitorID != "" {
		response.OK(c, gin.H{"visitorId": res.VisitorID})
		return
	}
	response.OK(c, nil)
}

// requestOrigin reconstructs the page that fired the beacon: the Origin
// header when present, else the host, plus the request path.
func requestOrigin(c *gin.Context) string {
	base := c.GetHeader("Origin")
	if base == "" {
		base = c.Request.Host
	}
	return base + c.Request.URL.RequestURI()
}
