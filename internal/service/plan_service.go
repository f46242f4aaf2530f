package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digkill/CatPortrait/internal/models"
)

// PlanInfo classifies a caller for provider routing.
type PlanInfo struct {
	Plan        models.PlanType
	UseHighTier bool
	Reason      string
}

// PlanOffer is a purchasable plan backed by a Creem product.
type PlanOffer struct {
	ID        models.PlanType
	ProductID string
	Points    int
}

type PlanService struct {
	payments PaymentStore
	offers   map[models.PlanType]PlanOffer
	log      *slog.Logger
}

func NewPlanService(payments PaymentStore, offers []PlanOffer, log *slog.Logger) *PlanService {
	byID := make(map[models.PlanType]PlanOffer, len(offers))
	for _, o := range offers {
		byID[o.ID] = o
	}
	return &PlanService{payments: payments, offers: byID, log: log}
}

// Detect derives the plan from the latest completed payment. It never fails:
// lookup errors degrade to the free plan.
func (s *PlanService) Detect(ctx context.Context, userID string) PlanInfo {
	if userID == "" {
		return PlanInfo{Plan: models.PlanFree, Reason: "guest"}
	}

	latest, err := s.payments.LatestCompleted(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "plan lookup failed", "user", userID, "err", err)
		return PlanInfo{Plan: models.PlanFree, Reason: "lookup failed"}
	}
	if latest == nil {
		return PlanInfo{Plan: models.PlanFree, Reason: "no completed payment"}
	}

	plan, ok := ParsePlan(latest.PlanID)
	if !ok {
		return PlanInfo{Plan: models.PlanFree, Reason: "unknown plan id: " + latest.PlanID}
	}
	if plan == models.PlanFree {
		return PlanInfo{Plan: models.PlanFree, Reason: "completed payment " + latest.CheckoutID + " is for the free plan"}
	}
	return PlanInfo{Plan: plan, UseHighTier: true, Reason: "completed payment " + latest.CheckoutID}
}

// Offer returns the purchasable plan with the given id.
func (s *PlanService) Offer(planID string) (PlanOffer, error) {
	plan, ok := ParsePlan(planID)
	if !ok {
		return PlanOffer{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	offer, ok := s.offers[plan]
	if !ok || offer.ProductID == "" {
		return PlanOffer{}, fmt.Errorf("%w: %q is not for sale", ErrUnknownPlan, planID)
	}
	return offer, nil
}

func ParsePlan(raw string) (models.PlanType, bool) {
	switch models.PlanType(strings.ToLower(strings.TrimSpace(raw))) {
	case models.PlanFree:
		return models.PlanFree, true
	case models.PlanStandard:
		return models.PlanStandard, true
	case models.PlanSuper:
		return models.PlanSuper, true
	default:
		return "", false
	}
}
