package service

import (
	"errors"

	"github.com/digkill/CatPortrait/internal/repository"
)

var (
	// ErrInsufficientBalance is shared with the repository so a lost debit
	// race and a failed entitlement check map to the same response.
	ErrInsufficientBalance = repository.ErrInsufficientBalance
	ErrGuestTrialExhausted = errors.New("guest trial exhausted")
	ErrGenerationFailed    = errors.New("image generation failed")
	ErrAuthRequired        = errors.New("authentication required")
	ErrUnknownRoute        = errors.New("unknown generation route")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrInvalidInput        = errors.New("invalid input")
	ErrImageNotFound       = errors.New("image not found")
	ErrPaymentsDisabled    = errors.New("payments are not configured")
	ErrStorageDisabled     = errors.New("image storage is not configured")
)
