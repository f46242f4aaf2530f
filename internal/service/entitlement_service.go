package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/ratelimit"
)

// Entitlement is the outcome of the pre-generation check. It never mutates
// a balance; a guest may hold a reserved trial slot that must be released
// if generation fails.
type Entitlement struct {
	Allowed bool
	Cost    int
	IsGuest bool
	Balance int

	reservation *ratelimit.Reservation
}

type EntitlementConfig struct {
	DefaultPoints    int
	GenerationCost   int
	GuestTrialLimit  int
	GuestTrialWindow time.Duration
}

type EntitlementService struct {
	cfg      EntitlementConfig
	accounts AccountStore
	guests   GuestStore
	quota    GuestQuota
	log      *slog.Logger
	now      func() time.Time
}

// NewEntitlementService builds the checker. quota may be nil, in which case
// guest usage recorded in the database bounds the trial instead.
func NewEntitlementService(cfg EntitlementConfig, accounts AccountStore, guests GuestStore, quota GuestQuota, log *slog.Logger) *EntitlementService {
	if cfg.GenerationCost <= 0 {
		cfg.GenerationCost = 1
	}
	if cfg.GuestTrialWindow <= 0 {
		cfg.GuestTrialWindow = 24 * time.Hour
	}
	return &EntitlementService{
		cfg:      cfg,
		accounts: accounts,
		guests:   guests,
		quota:    quota,
		log:      log,
		now:      time.Now,
	}
}

// Check decides whether caller may start one generation. guestTrialsUsed is
// the counter reported by the client and only matters for guests.
func (s *EntitlementService) Check(ctx context.Context, caller auth.Caller, guestTrialsUsed int) (*Entitlement, error) {
	if caller.IsGuest() {
		return s.checkGuest(ctx, caller, guestTrialsUsed), nil
	}

	account, created, err := s.accounts.Ensure(ctx, caller.UserID, s.cfg.DefaultPoints)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	if created {
		s.log.InfoContext(ctx, "account created", "user", caller.UserID, "points", account.Balance)
	}
	return &Entitlement{
		Allowed: account.Balance >= s.cfg.GenerationCost,
		Cost:    s.cfg.GenerationCost,
		Balance: account.Balance,
	}, nil
}

// checkGuest honours the client counter and then enforces the server-side
// quota. Quota lookups fail open.
func (s *EntitlementService) checkGuest(ctx context.Context, caller auth.Caller, trialsUsed int) *Entitlement {
	ent := &Entitlement{IsGuest: true}
	if trialsUsed >= s.cfg.GuestTrialLimit {
		return ent
	}

	if s.quota != nil {
		reservation, ok, err := s.quota.Reserve(ctx, caller.GuestKey)
		if err != nil {
			s.log.WarnContext(ctx, "guest quota unavailable, allowing", "guest", caller.GuestKey, "err", err)
			ent.Allowed = true
			return ent
		}
		ent.Allowed = ok
		ent.reservation = reservation
		return ent
	}

	if s.guests != nil {
		used, err := s.guests.CountSince(ctx, caller.GuestKey, s.now().Add(-s.cfg.GuestTrialWindow))
		if err != nil {
			s.log.WarnContext(ctx, "count guest usage, allowing", "guest", caller.GuestKey, "err", err)
			ent.Allowed = true
			return ent
		}
		ent.Allowed = used < s.cfg.GuestTrialLimit
		return ent
	}

	ent.Allowed = true
	return ent
}

// Release returns a reserved guest slot after a failed generation.
func (s *EntitlementService) Release(ctx context.Context, ent *Entitlement) {
	if ent == nil || ent.reservation == nil || s.quota == nil {
		return
	}
	if err := s.quota.Release(ctx, ent.reservation); err != nil {
		s.log.WarnContext(ctx, "release guest quota", "err", err)
	}
	ent.reservation = nil
}
