package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// AuthMiddleware returns a middleware that validates the gateway token.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// If no token is configured, the gateway is open (local-only default bind)
		expected := s.cfg.Gateway.Auth.Token
		if expected == "" {
			return next(c)
		}

		token := extractToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authentication token")
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authentication token")
		}

		return next(c)
	}
}

// RateLimitMiddleware returns a middleware that limits requests per IP.
func (s *Server) RateLimitMiddleware() echo.MiddlewareFunc {
	if !s.cfg.Gateway.RateLimit.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	rps := s.cfg.Gateway.RateLimit.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := s.cfg.Gateway.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}

	cfg := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: 0,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded",
			})
		},
	}

	return middleware.RateLimiterWithConfig(cfg)
}

func extractToken(r *http.Request) string {
	// 1. Authorization: Bearer <token>
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	// 2. X-ChatHub-Token
	if token := r.Header.Get("X-ChatHub-Token"); token != "" {
		return token
	}

	// 3. Query parameter ?token=<token>
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
