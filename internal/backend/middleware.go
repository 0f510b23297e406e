package backend

import (
	"net/http"
	"strconv"
	"time"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/core"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// rateLimiter allows MaxRequests per Window and client IP. A zero limit
// disables it.
func rateLimiter(cfg core.RateLimitConfig) echo.MiddlewareFunc {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Every(cfg.Window / time.Duration(cfg.MaxRequests)),
		Burst:     cfg.MaxRequests,
		ExpiresIn: cfg.Window,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		ErrorHandler: func(ctx echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		},
	})
}

// adminAuth checks "Authorization: Bearer <token>" against a bcrypt hash.
// Without a configured hash every admin request is refused.
func adminAuth(tokenHash string) echo.MiddlewareFunc {
	if tokenHash == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(ctx echo.Context) error {
				return echo.NewHTTPError(http.StatusForbidden, "admin access is not configured")
			}
		}
	}
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, ctx echo.Context) (bool, error) {
			return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(key)) == nil, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin authorization required")
		},
	})
}

// HashAdminToken produces the value for admin.tokenHash.
func HashAdminToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Metrics lives on a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	uploads  prometheus.Counter
	scores   *prometheus.CounterVec
	social   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diwali",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "diwali",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diwali",
			Name:      "uploads_total",
			Help:      "Images processed and pinned.",
		}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diwali",
			Name:      "score_previews_total",
			Help:      "Score previews by resulting score.",
		}, []string{"score"}),
		social: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diwali",
			Name:      "social_actions_total",
			Help:      "Likes, cheers and comments.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.uploads, m.scores, m.social,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				status = statusFor(err)
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
