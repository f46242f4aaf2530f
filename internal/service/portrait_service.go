package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/prompt"
)

type PortraitRequest struct {
	Route           string
	Caller          auth.Caller
	Prompt          prompt.StructuredPrompt
	GuestTrialsUsed int
}

// Portrait is the response of one generate-cat call. PointsRemaining is nil
// for guests and when the billing write failed.
type Portrait struct {
	ImageURL        string          `json:"imageUrl"`
	PointsRemaining *int            `json:"pointsRemaining,omitempty"`
	IsGuestMode     bool            `json:"isGuestMode"`
	APIUsed         string          `json:"apiUsed"`
	Plan            models.PlanType `json:"plan"`
}

// PortraitService runs one request through entitlement, generation and
// settlement, in that order.
type PortraitService struct {
	routes       map[string]Route
	entitlements *EntitlementService
	generator    *GenerationService
	ledger       *LedgerService
	log          *slog.Logger
}

func NewPortraitService(routes []Route, entitlements *EntitlementService, generator *GenerationService, ledger *LedgerService, log *slog.Logger) *PortraitService {
	byName := make(map[string]Route, len(routes))
	for _, r := range routes {
		byName[r.Name] = r
	}
	return &PortraitService{
		routes:       byName,
		entitlements: entitlements,
		generator:    generator,
		ledger:       ledger,
		log:          log,
	}
}

func (s *PortraitService) Create(ctx context.Context, req PortraitRequest) (*Portrait, error) {
	route, ok := s.routes[req.Route]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, req.Route)
	}
	if route.RequireAuth && req.Caller.IsGuest() {
		return nil, ErrAuthRequired
	}
	if err := req.Prompt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ent, err := s.entitlements.Check(ctx, req.Caller, req.GuestTrialsUsed)
	if err != nil {
		return nil, err
	}
	if !ent.Allowed {
		if ent.IsGuest {
			return nil, ErrGuestTrialExhausted
		}
		return nil, ErrInsufficientBalance
	}

	result, err := s.generator.Generate(ctx, route, req.Caller, req.Prompt)
	if err != nil {
		s.entitlements.Release(context.WithoutCancel(ctx), ent)
		return nil, err
	}

	portrait := &Portrait{
		ImageURL:    result.Image.Src(),
		IsGuestMode: ent.IsGuest,
		APIUsed:     result.APIUsed,
		Plan:        result.Plan.Plan,
	}

	settlement, err := s.ledger.Settle(context.WithoutCancel(ctx), req.Caller, result.APIUsed, result.RenderedPrompt)
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return nil, err
	case err != nil:
		// The image is delivered anyway; the ledger already logged and alerted.
		return portrait, nil
	}
	if settlement.Charged {
		balance := settlement.NewBalance
		portrait.PointsRemaining = &balance
	}
	return portrait, nil
}
