package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// MerchantHeader carries the owner of the stores a request acts on
	MerchantHeader  = "X-Merchant-ID"
	RequestIDHeader = "X-Request-ID"

	merchantKey  = "merchantId"
	requestIDKey = "requestId"
)

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// CORS handles Cross-Origin Resource Sharing. An entry of the form
// https://*.example.com allows every subdomain; "*" allows every origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
			if suffix := strings.TrimPrefix(o, "https://*"); suffix != o && strings.HasPrefix(origin, "https://") && strings.HasSuffix(origin, suffix) {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+MerchantHeader+", "+RequestIDHeader)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// MerchantMiddleware resolves the merchant from an upstream auth layer, the
// X-Merchant-ID header or the merchantId query parameter. Requests without a
// merchant act on unowned, local-only stores.
func MerchantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchantID := c.GetString("merchant_id")
		if merchantID == "" {
			merchantID = strings.TrimSpace(c.GetHeader(MerchantHeader))
		}
		if merchantID == "" {
			merchantID = c.Query("merchantId")
		}
		if merchantID != "" {
			c.Set(merchantKey, merchantID)
		}
		c.Next()
	}
}

// RequireMerchantID rejects requests without a merchant
func RequireMerchantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetMerchantID(c) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "merchant ID is required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetMerchantID retrieves the merchant ID from the context
func GetMerchantID(c *gin.Context) string {
	return c.GetString(merchantKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger assigns a request ID and logs every request once it completes
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	log := logger.WithField("component", "http")
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"merchant_id": GetMerchantID(c),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/ready":
			entry.Debug("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}
