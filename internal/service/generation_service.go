package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/metrics"
	"github.com/digkill/CatPortrait/internal/prompt"
	"github.com/digkill/CatPortrait/internal/provider"
)

const (
	RouteDefault = "default"
	RouteFree    = "free"
	RoutePower   = "power"
)

// Route is an ordered provider chain. High-tier providers are tried first
// for callers on a paid plan.
type Route struct {
	Name        string
	RequireAuth bool
	HighTier    []provider.Provider
	LowTier     []provider.Provider
}

// Chain returns the providers to try, in order.
func (r Route) Chain(useHighTier bool) []provider.Provider {
	if !useHighTier {
		return r.LowTier
	}
	chain := make([]provider.Provider, 0, len(r.HighTier)+len(r.LowTier))
	chain = append(chain, r.HighTier...)
	return append(chain, r.LowTier...)
}

// Attempt records one provider invocation.
type Attempt struct {
	Provider string
	Duration time.Duration
	Err      error
}

type GenerationResult struct {
	Image          provider.Image
	APIUsed        string
	RenderedPrompt string
	Plan           PlanInfo
	Attempts       []Attempt
}

type PlanDetector interface {
	Detect(ctx context.Context, userID string) PlanInfo
}

type GenerationService struct {
	plans   PlanDetector
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewGenerationService(plans PlanDetector, m *metrics.Metrics, log *slog.Logger) *GenerationService {
	return &GenerationService{plans: plans, metrics: m, log: log}
}

// Generate walks the route's chain until one provider returns an image.
// Retryable failures fall through to the next provider; a fatal failure or
// an exhausted chain ends with ErrGenerationFailed. Each provider is called
// at most once.
func (s *GenerationService) Generate(ctx context.Context, route Route, caller auth.Caller, p prompt.StructuredPrompt) (*GenerationResult, error) {
	if route.RequireAuth && caller.IsGuest() {
		return nil, ErrAuthRequired
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	plan := s.plans.Detect(ctx, caller.UserID)
	chain := route.Chain(plan.UseHighTier)
	result := &GenerationResult{Plan: plan}

	log := s.log.With("route", route.Name, "caller", caller.Key(), "plan", plan.Plan)
	log.InfoContext(ctx, "generation started", "plan_reason", plan.Reason, "providers", len(chain))

	var lastErr error
	for _, prov := range chain {
		name := prov.Name()
		started := time.Now()

		res, err := s.invoke(ctx, prov, p)
		elapsed := time.Since(started)
		result.Attempts = append(result.Attempts, Attempt{Provider: name, Duration: elapsed, Err: err})

		if err == nil {
			s.metrics.ProviderAttempt(name, "success", elapsed)
			s.metrics.Generation(route.Name, string(plan.Plan), "success")
			log.InfoContext(ctx, "provider succeeded", "provider", name, "duration", elapsed)

			result.Image = res.Image
			result.APIUsed = name
			result.RenderedPrompt = res.RenderedPrompt
			return result, nil
		}

		lastErr = err
		if !provider.IsRetryable(err) {
			s.metrics.ProviderAttempt(name, "fatal", elapsed)
			log.WarnContext(ctx, "provider failed, stopping", "provider", name, "duration", elapsed, "err", err)
			break
		}
		s.metrics.ProviderAttempt(name, "retryable", elapsed)
		log.WarnContext(ctx, "provider failed, trying next", "provider", name, "duration", elapsed, "err", err)
	}

	s.metrics.Generation(route.Name, string(plan.Plan), "failed")
	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return result, fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}

// invoke runs the availability pre-check, if any, and then the provider. A
// failed pre-check counts as a retryable failure of that provider.
func (s *GenerationService) invoke(ctx context.Context, prov provider.Provider, p prompt.StructuredPrompt) (*provider.Result, error) {
	if checker, ok := prov.(provider.Availability); ok {
		if err := checker.Available(ctx); err != nil {
			return nil, err
		}
	}
	res, err := prov.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Image.Empty() {
		return nil, &provider.Error{Provider: prov.Name(), Kind: provider.KindRetryable, Msg: "empty image"}
	}
	return res, nil
}
