package middleware

import (
	"net/http"
	"storefront-service/internal/model"
	"storefront-service/pkg/jwtutil"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const principalKey = "principal"

// TokenValidator parses a bearer token into claims
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwtutil.UserClaims, error)
}

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(principalKey, model.Principal{
				UserID:   claims.UserID,
				Username: claims.Username,
				IsAdmin:  claims.IsAdmin,
			})
			c.Set("logger", log.With(zap.Uint("user_id", claims.UserID)))
			return next(c)
		}
	}
}

// RequireAdmin rejects authenticated callers without the admin flag
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}
		if !p.IsAdmin {
			logger.FromContext(c).Warn("Admin route denied", zap.String("path", c.Path()))
			prometheus.RecordAuthError("admin_required")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
		}
		return next(c)
	}
}

// PrincipalFromContext returns the caller set by AuthMiddleware
func PrincipalFromContext(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok
}
