package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows any origin: the service sits on an internal network and
// is called by workflow engines and browser-based tree viewers alike.
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", "X-Requested-With", "X-Trace-Id", "X-Request-Id"}
	return cors.New(cfg)
}
