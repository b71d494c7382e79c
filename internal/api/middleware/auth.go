package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

// Auth validates the bearer token and injects the identifier into context.
func Auth(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "缺少身份令牌")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "无效的身份令牌")
			}

			identifier, err := verifier.VerifyToken(strings.TrimSpace(parts[1]))
			if err != nil {
				if errors.Is(err, domain.ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "登录已过期，请重新登录")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "无效的身份令牌")
			}

			c.Set("identifier", identifier)

			return next(c)
		}
	}
}
