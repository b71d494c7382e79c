package domain

import "errors"

var (
	ErrEmptyCredentials   = errors.New("identifier and secret are required")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

var (
	ErrEmptyQuestion             = errors.New("question is empty")
	ErrEmptyUpstreamAnswer       = errors.New("upstream returned an empty answer")
	ErrMalformedUpstreamResponse = errors.New("upstream response has no answer content")
)
