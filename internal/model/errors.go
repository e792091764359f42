package model

import "errors"

var (
	ErrDataUnavailable  = errors.New("market data unavailable")
	ErrInsufficientData = errors.New("insufficient data")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrPersistence      = errors.New("persistence failure")
	ErrInvalidTicker    = errors.New("invalid ticker")
)
