package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// requestContext scopes every request to the served company and a request
// id, and logs the request once it completes.
func requestContext(base *zap.Logger, companyID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		ctx := tenant.WithRequestID(c.Request.Context(), requestID)
		ctx = tenant.WithCompanyID(ctx, companyID)
		ctx = logger.WithLogger(ctx, base.With(zap.String("company_id", companyID)))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.FromContext(ctx).Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContextOr(c.Request.Context(), base).Error("[panic] Recovered from panic in HTTP handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Success: false, Error: "internal error"})
			}
		}()
		c.Next()
	}
}
