package market

import (
	"errors"

	"trackmarket/cache"
	"trackmarket/repository"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrMissingRequisites = errors.New("bank and account are required")
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrInvalidPrice      = errors.New("price must be greater than zero")
	ErrMissingFileName   = errors.New("fileName is required")
	ErrFileTooLarge      = errors.New("file is too large")
	ErrInvalidStatus     = errors.New("unknown track status")
	ErrInvalidType       = errors.New("unknown transaction type")
	ErrTrackNotFound     = errors.New("track not found")
	ErrAudioNotStored    = errors.New("track has no stored audio")
	ErrTrackNotActive    = repository.ErrTrackNotActive
	ErrEstimateNotFound  = cache.ErrEstimateNotFound
)
