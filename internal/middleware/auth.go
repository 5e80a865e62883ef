package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omalk98/tracker-mailer/internal/pkg/response"
)

const (
	// ContextKeyVisitorToken holds the visitor token presented by the client,
	// or "" when none was sent.
	ContextKeyVisitorToken = "visitor_token"

	visitorIDHeader = "X-Visitor-Id"
)

// SharedSecret returns a middleware that enforces the beacon's shared secret.
// The secret travels in Authorization (a Bearer prefix is tolerated) and the
// visitor token in X-Visitor-Id. Older clients concatenate the visitor's UUID
// directly onto the secret in Authorization; that form is still accepted.
func SharedSecret(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := NormalizeToken(c.GetHeader("Authorization"))

		token := ""
		switch {
		case raw == secret:
			token = strings.TrimSpace(c.GetHeader(visitorIDHeader))
		case strings.HasPrefix(raw, secret) && isUUID(raw[len(secret):]):
			token = raw[len(secret):]
		default:
			log.Warn("unauthorized access attempt",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			response.Unauthorized(c)
			return
		}

		c.Set(ContextKeyVisitorToken, token)
		c.Next()
	}
}

// VisitorToken extracts the visitor token from context.
func VisitorToken(c *gin.Context) string {
	v, _ := c.Get(ContextKeyVisitorToken)
	token, _ := v.(string)
	return token
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
