// Package gateway implements the auth and instrumentation middleware used
// by the dashboard API.
package gateway

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// AuthMiddleware is a JWT authorization middleware guarding mutating
// dashboard routes.
func (a *JWTAuth) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "empty header was sent",
				"code": "unauthorized"})
			return
		}

		claims, err := a.VerifyJWT(h)
		if e, ok := err.(*jwt.ValidationError); ok {
			if e.Errors&jwt.ValidationErrorExpired != 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Token has expired", "code": "jwt_expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Malformed token", "code": "jwt_malformed"})
			return
		} else if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error(), "code": "unauthorized"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

// OptionsMiddleware for cors headers
func OptionsMiddleware(c *gin.Context) {
	if c.Request.Method != "OPTIONS" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	} else {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "authorization, origin, content-type, accept, X-CSRF-TOKEN")
		c.Header("Allow", "HEAD,GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Header("Content-Type", "application/json")
		c.AbortWithStatus(http.StatusOK)
	}
}

// GenerateAPIKey generates a random hex key, used both for API keys and as
// the fallback jwt signing secret.
func GenerateAPIKey() (string, error) {
	key := make([]byte, 16)
	_, err := rand.Read(key)
	return fmt.Sprintf("%x", key), err
}

var httpMetricsOnce sync.Once

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
)

func initHTTPMetrics() {
	httpMetricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storewatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"})
		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storewatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"})

		if err := prometheus.Register(httpRequestsTotal); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				httpRequestsTotal = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				log.Printf("prometheus counter register failed: %v", err)
			}
		}
		if err := prometheus.Register(httpRequestDuration); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				httpRequestDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			} else {
				log.Printf("prometheus histogram register failed: %v", err)
			}
		}
	})
}

// Instrumentation counts and times every request by route template.
func Instrumentation() gin.HandlerFunc {
	initHTTPMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
