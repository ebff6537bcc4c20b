package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/warung/kasir/internal/events"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerOwnerID   = "X-Owner-ID"
	headerCashierID = "X-Cashier-ID"

	ctxOwnerID   = "ownerID"
	ctxCashierID = "cashierID"
)

// RequestID tags each request with a correlation id, reusing the caller's
// X-Request-ID when present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(events.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger logs every request once it has been served
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", events.CorrelationID(c.Request.Context())),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("HTTP request failed", fields...)
			return
		}
		log.Info("HTTP request completed", fields...)
	}
}

// RequireOwner reads the owner id header. Identity is established upstream;
// this service only trusts what the gateway forwards.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, err := cast.ToUintE(c.GetHeader(headerOwnerID))
		if err != nil || ownerID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Owner-ID header is required"})
			return
		}
		c.Set(ctxOwnerID, ownerID)
		c.Next()
	}
}

// RequireCashier reads the cashier id header
func RequireCashier() gin.HandlerFunc {
	return func(c *gin.Context) {
		cashierID, err := cast.ToUintE(c.GetHeader(headerCashierID))
		if err != nil || cashierID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Cashier-ID header is required"})
			return
		}
		c.Set(ctxCashierID, cashierID)
		c.Next()
	}
}

func ownerFrom(c *gin.Context) uint {
	return c.MustGet(ctxOwnerID).(uint)
}

func cashierFrom(c *gin.Context) uint {
	return c.MustGet(ctxCashierID).(uint)
}
