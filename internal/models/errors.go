package models

import "github.com/pkg/errors"

// Domain errors returned by the services and the storage layer. The API
// layer maps these to HTTP statuses with errors.Is; everything else is an
// internal failure and safe to retry.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyClaimed    = errors.New("donation is no longer available")
	ErrInvalidCredential = errors.New("invalid pickup code")
	ErrInvalidState      = errors.New("operation not allowed in current status")
	ErrWorkflowViolation = errors.New("donation must be picked up first")
	ErrEmailTaken        = errors.New("email already registered")
)
