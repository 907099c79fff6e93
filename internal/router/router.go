package router

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/handler"
)

// APIKeyHeader carries the key that guards the /api/v1 routes
const APIKeyHeader = "X-API-Key"

// SetupRouter configures the Gin router with routes and middleware. An
// empty apiKey leaves the API unauthenticated.
func SetupRouter(h *handler.Handlers, apiKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware())

	if apiKey == "" {
		logrus.Warn("No API key configured, the admin API is unauthenticated")
		h.SetupRoutes(r)
	} else {
		h.SetupRoutes(r, apiKeyMiddleware(apiKey))
	}
	return r
}

func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}

func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing or invalid API key",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}
