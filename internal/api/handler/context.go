package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ctxIdentifier extracts the identifier injected by the Auth middleware.
// An empty value means the middleware did not run for this route.
func ctxIdentifier(c echo.Context) (string, error) {
	identifier, _ := c.Get("identifier").(string)
	if identifier == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "无效的身份令牌")
	}
	return identifier, nil
}
