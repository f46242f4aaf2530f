package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/metrics"
	"github.com/digkill/CatPortrait/internal/notify"
)

// Settlement is the billing outcome of one successful generation.
type Settlement struct {
	NewBalance int
	Charged    bool
}

type LedgerService struct {
	accounts AccountStore
	guests   GuestStore
	notifier notify.Notifier
	metrics  *metrics.Metrics
	cost     int
	log      *slog.Logger
}

func NewLedgerService(accounts AccountStore, guests GuestStore, notifier notify.Notifier, m *metrics.Metrics, cost int, log *slog.Logger) *LedgerService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cost <= 0 {
		cost = 1
	}
	return &LedgerService{
		accounts: accounts,
		guests:   guests,
		notifier: notifier,
		metrics:  m,
		cost:     cost,
		log:      log,
	}
}

// Settle bills one generation produced by providerUsed. Guests are never
// billed; their usage row is best effort. For users the debit and its SPEND
// row are one atomic write. ErrInsufficientBalance means a concurrent request
// spent the balance first; any other error is a billing-write failure.
func (s *LedgerService) Settle(ctx context.Context, caller auth.Caller, providerUsed, renderedPrompt string) (Settlement, error) {
	if caller.IsGuest() {
		if s.guests != nil {
			if err := s.guests.Log(ctx, caller.GuestKey, providerUsed, renderedPrompt); err != nil {
				s.log.WarnContext(ctx, "record guest usage", "guest", caller.GuestKey, "err", err)
			}
		}
		s.metrics.Settlement("guest", "skipped")
		return Settlement{}, nil
	}

	reason := "generate image via " + providerUsed
	balance, err := s.accounts.Debit(ctx, caller.UserID, s.cost, reason)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			s.metrics.Settlement("user", "insufficient")
			return Settlement{}, ErrInsufficientBalance
		}
		s.metrics.Settlement("user", "error")
		s.log.ErrorContext(ctx, "billing write failed, image delivered unbilled",
			"user", caller.UserID, "provider", providerUsed, "cost", s.cost, "err", err)
		s.notifier.Notify(context.WithoutCancel(ctx), fmt.Sprintf(
			"billing write failed\nuser: %s\nprovider: %s\ncost: %d\nerror: %v",
			caller.UserID, providerUsed, s.cost, err))
		return Settlement{}, fmt.Errorf("debit %s: %w", caller.UserID, err)
	}

	s.metrics.Settlement("user", "charged")
	return Settlement{NewBalance: balance, Charged: true}, nil
}
