package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamKind classifies a failure of the completion provider.
type UpstreamKind int

const (
	UpstreamUnknown UpstreamKind = iota
	UpstreamAuth
	UpstreamTimeout
)

func (k UpstreamKind) String() string {
	switch k {
	case UpstreamAuth:
		return "auth"
	case UpstreamTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// UpstreamError is a provider failure normalized into the small taxonomy the
// relay understands. Cause keeps the raw provider error for logging.
type UpstreamError struct {
	Kind  UpstreamKind
	Cause error
}

func (e *UpstreamError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("upstream %s failure", e.Kind)
	}
	return fmt.Sprintf("upstream %s failure: %v", e.Kind, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StatusCode is the HTTP status to use while the response is still uncommitted.
func (e *UpstreamError) StatusCode() int {
	if e.Kind == UpstreamAuth {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// UserMessage is the caller-facing text for this failure. It is also what gets
// embedded in a stream error frame once headers are committed.
func (e *UpstreamError) UserMessage() string {
	switch e.Kind {
	case UpstreamAuth:
		return "API认证失败，请检查API密钥"
	case UpstreamTimeout:
		return "API请求超时，请重试"
	}
	if e.Cause == nil {
		return "服务器内部错误，请稍后重试"
	}
	return "API调用失败: " + e.Cause.Error()
}

type timeoutError interface {
	Timeout() bool
}

var (
	authMarkers    = []string{"api key", "apikey", "api_key", "authentication", "unauthorized"}
	timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}
)

// ClassifyUpstream wraps err into an *UpstreamError. Errors that already carry a
// classification are returned as they are.
func ClassifyUpstream(err error) *UpstreamError {
	if err == nil {
		return nil
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: UpstreamTimeout, Cause: err}
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return &UpstreamError{Kind: UpstreamTimeout, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, authMarkers) {
		return &UpstreamError{Kind: UpstreamAuth, Cause: err}
	}
	if containsAny(msg, timeoutMarkers) {
		return &UpstreamError{Kind: UpstreamTimeout, Cause: err}
	}
	return &UpstreamError{Kind: UpstreamUnknown, Cause: err}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
