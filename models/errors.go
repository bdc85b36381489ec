package models

import "errors"

var (
	ErrRecommendedAboveMax = errors.New("recommended hours exceed the configured maximum")
	ErrNoActiveLimitConfig = errors.New("no active overtime limit configuration")
	ErrNoActiveSMBConfig   = errors.New("no active SMB configuration")
)
