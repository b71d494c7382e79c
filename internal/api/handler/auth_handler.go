package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mathsolver/solver-api/internal/api/metrics"
	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	log         zerolog.Logger
}

func NewAuthHandler(authService ports.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// credentialsRequest accepts both the identifier/secret pair and the older
// username/password field names.
type credentialsRequest struct {
	Identifier string `json:"identifier" example:"alice"`
	Secret     string `json:"secret" example:"s3cret"`
	Username   string `json:"username,omitempty" swaggerignore:"true"`
	Password   string `json:"password,omitempty" swaggerignore:"true"`
}

type credentials struct {
	Identifier string `validate:"required"`
	Secret     string `validate:"required"`
}

func (r credentialsRequest) normalize() credentials {
	out := credentials{Identifier: r.Identifier, Secret: r.Secret}
	if out.Identifier == "" {
		out.Identifier = r.Username
	}
	if out.Secret == "" {
		out.Secret = r.Password
	}
	return out
}

type userView struct {
	Identifier string `json:"identifier" example:"alice"`
}

type authResponse struct {
	Status string   `json:"status" example:"success"`
	Token  string   `json:"token,omitempty"`
	User   userView `json:"user"`
}

// Register creates a new identity and returns a token for it.
//
// @Summary      Register a new identity
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      credentialsRequest  true  "Identifier and secret"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	creds, err := h.bindCredentials(c)
	if err != nil {
		return h.fail(c, "register", err, "注册失败，请稍后重试")
	}

	cred, err := h.authService.Register(c.Request().Context(), creds.Identifier, creds.Secret)
	if err != nil {
		return h.fail(c, "register", err, "注册失败，请稍后重试")
	}

	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	return c.JSON(http.StatusOK, authResponse{
		Status: statusSuccess,
		Token:  cred.Token,
		User:   userView{Identifier: cred.Identifier},
	})
}

// Login verifies an identifier/secret pair and returns a fresh token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      credentialsRequest  true  "Identifier and secret"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	creds, err := h.bindCredentials(c)
	if err != nil {
		return h.fail(c, "login", err, "登录失败，请稍后重试")
	}

	cred, err := h.authService.Login(c.Request().Context(), creds.Identifier, creds.Secret)
	if err != nil {
		return h.fail(c, "login", err, "登录失败，请稍后重试")
	}

	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	return c.JSON(http.StatusOK, authResponse{
		Status: statusSuccess,
		Token:  cred.Token,
		User:   userView{Identifier: cred.Identifier},
	})
}

// Me returns the identity bound to the bearer token.
//
// @Summary      Current identity
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  authResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	identifier, err := ctxIdentifier(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{Status: statusSuccess, User: userView{Identifier: identifier}})
}

// bindCredentials rejects malformed bodies and missing fields alike with
// domain.ErrEmptyCredentials.
func (h *AuthHandler) bindCredentials(c echo.Context) (credentials, error) {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return credentials{}, domain.ErrEmptyCredentials
	}
	creds := req.normalize()
	if err := c.Validate(&creds); err != nil {
		return credentials{}, domain.ErrEmptyCredentials
	}
	return creds, nil
}

func (h *AuthHandler) fail(c echo.Context, op string, err error, fallback string) error {
	code, msg, known := ResolveError(err)
	if !known {
		h.log.Error().Err(err).Str("operation", op).Msg("auth request failed")
		msg = fallback
	}

	result := "rejected"
	if code >= http.StatusInternalServerError {
		result = "error"
	}
	metrics.AuthAttemptsTotal.WithLabelValues(op, result).Inc()

	if errors.Is(err, domain.ErrInvalidCredentials) {
		h.log.Debug().Str("operation", op).Msg("credentials rejected")
	}
	return c.JSON(code, NewErrorResponse(msg))
}
