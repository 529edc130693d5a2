// README: Access logging through zap.
package middleware

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logging logs every request with RFC3339 UTC timestamps.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return ginzap.Ginzap(log, time.RFC3339, true)
}
