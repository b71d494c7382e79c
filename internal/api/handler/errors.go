package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	msgInternal = "服务器内部错误，请稍后重试"
)

// ErrorResponse is the canonical error envelope for all API errors.
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Error  string `json:"error" example:"请提供有效的数学问题"`
}

// NewErrorResponse wraps msg in the error envelope.
func NewErrorResponse(msg string) ErrorResponse {
	return ErrorResponse{Status: statusError, Error: msg}
}

// ResolveError maps err to an HTTP status and the user-facing message.
// known is false for errors with no deterministic mapping; the caller should
// log those and keep the generic message.
func ResolveError(err error) (code int, msg string, known bool) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message), true
	}

	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode(), ue.UserMessage(), true
	}

	switch {
	case errors.Is(err, domain.ErrEmptyCredentials):
		return http.StatusBadRequest, "用户名和密码不能为空", true
	case errors.Is(err, domain.ErrIdentityExists):
		return http.StatusBadRequest, "用户名已存在", true
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "用户名或密码错误", true
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized, "登录已过期，请重新登录", true
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized, "无效的身份令牌", true
	case errors.Is(err, domain.ErrEmptyQuestion):
		return http.StatusBadRequest, "请提供有效的数学问题", true
	case errors.Is(err, domain.ErrEmptyUpstreamAnswer):
		return http.StatusInternalServerError, "API返回的答案为空", true
	case errors.Is(err, domain.ErrMalformedUpstreamResponse):
		return http.StatusInternalServerError, "API返回的响应格式不正确", true
	}

	return http.StatusInternalServerError, msgInternal, false
}
