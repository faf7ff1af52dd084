package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSale      = errors.New("invalid sale")
	ErrUnknownView      = errors.New("unknown view")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrLockHeld         = errors.New("lock already held")
	ErrEmptyImport      = errors.New("import contains no rows")
	ErrInvalidRange     = errors.New("invalid date range")
)
