package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/metrics"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/prompt"
	"github.com/digkill/CatPortrait/internal/provider"
)

type staticPlan PlanInfo

func (p staticPlan) Detect(ctx context.Context, userID string) PlanInfo {
	return PlanInfo(p)
}

var (
	paidPlan = staticPlan{Plan: models.PlanSuper, UseHighTier: true}
	freePlan = staticPlan{Plan: models.PlanFree}
)

func newGenerator(plans PlanDetector) *GenerationService {
	return NewGenerationService(plans, metrics.MustNew(prometheus.NewRegistry()), discardLogger())
}

func TestRouteChain(t *testing.T) {
	high, low1, low2 := okProvider("high"), okProvider("low1"), okProvider("low2")
	route := Route{HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low1, low2}}

	names := func(chain []provider.Provider) []string {
		var out []string
		for _, p := range chain {
			out = append(out, p.Name())
		}
		return out
	}
	assert.Equal(t, []string{"high", "low1", "low2"}, names(route.Chain(true)))
	assert.Equal(t, []string{"low1", "low2"}, names(route.Chain(false)))
}

func TestGenerate_HighTierSuccess(t *testing.T) {
	high, low := okProvider("vertex"), okProvider("proxy")
	route := Route{Name: RouteDefault, HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low}}

	res, err := newGenerator(paidPlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "vertex", res.APIUsed)
	assert.Equal(t, 1, high.callCount())
	assert.Equal(t, 0, low.callCount())
	assert.Len(t, res.Attempts, 1)
	assert.NotEmpty(t, res.RenderedPrompt)
}

func TestGenerate_FallbackReportsFallbackProvider(t *testing.T) {
	high, low := failingProvider("vertex"), okProvider("proxy")
	route := Route{Name: RouteDefault, HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low}}

	res, err := newGenerator(paidPlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "proxy", res.APIUsed)
	assert.Equal(t, "https://img.example.com/proxy.png", res.Image.Src())
	require.Len(t, res.Attempts, 2)
	assert.Error(t, res.Attempts[0].Err)
	assert.NoError(t, res.Attempts[1].Err)
}

func TestGenerate_FreePlanSkipsHighTier(t *testing.T) {
	high, low := okProvider("vertex"), okProvider("proxy")
	route := Route{Name: RouteDefault, HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low}}

	res, err := newGenerator(freePlan).Generate(context.Background(), route, auth.Caller{GuestKey: "g"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "proxy", res.APIUsed)
	assert.Equal(t, 0, high.callCount())
}

func TestGenerate_UnavailableCountsAsFailure(t *testing.T) {
	high := okProvider("vertex")
	high.availErr = errors.New("project not configured")
	low := okProvider("imagen-4.0")
	route := Route{Name: RoutePower, HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low}}

	res, err := newGenerator(paidPlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "imagen-4.0", res.APIUsed)
	assert.Equal(t, 0, high.callCount(), "generate is not called after a failed pre-check")
}

func TestGenerate_Exhausted(t *testing.T) {
	a, b := failingProvider("proxy"), failingProvider("imagen-4.0")
	route := Route{Name: RouteFree, LowTier: []provider.Provider{a, b}}

	res, err := newGenerator(freePlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	require.NotNil(t, res)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, 1, b.callCount(), "each provider is tried exactly once")
}

func TestGenerate_FatalStopsChain(t *testing.T) {
	high := &fakeProvider{name: "vertex", err: &provider.Error{Provider: "vertex", Kind: provider.KindFatal, Msg: "request cancelled", Cause: context.Canceled}}
	low := okProvider("proxy")
	route := Route{Name: RouteDefault, HighTier: []provider.Provider{high}, LowTier: []provider.Provider{low}}

	_, err := newGenerator(paidPlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, low.callCount())
}

func TestGenerate_EmptyImageIsRetryable(t *testing.T) {
	empty := &emptyProvider{name: "proxy"}
	low := okProvider("imagen-4.0")
	route := Route{Name: RouteFree, LowTier: []provider.Provider{empty, low}}

	res, err := newGenerator(freePlan).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, "imagen-4.0", res.APIUsed)
}

func TestGenerate_GuestRejectedOnAuthRoute(t *testing.T) {
	p := okProvider("vertex")
	route := Route{Name: RoutePower, RequireAuth: true, HighTier: []provider.Provider{p}}

	_, err := newGenerator(freePlan).Generate(context.Background(), route, auth.Caller{GuestKey: "g"}, testPrompt())
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, 0, p.callCount())
}

func TestGenerate_NoProviders(t *testing.T) {
	_, err := newGenerator(freePlan).Generate(context.Background(), Route{Name: RouteFree}, auth.Caller{UserID: "u"}, testPrompt())
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_DetectsPlanOnce(t *testing.T) {
	payments := newFakePayments(nil)
	plans := NewPlanService(payments, nil, discardLogger())
	route := Route{Name: RouteDefault, HighTier: []provider.Provider{failingProvider("vertex")}, LowTier: []provider.Provider{okProvider("proxy")}}

	_, err := newGenerator(plans).Generate(context.Background(), route, auth.Caller{UserID: "u"}, testPrompt())
	require.NoError(t, err)
	assert.Equal(t, 1, payments.lookups)
}

type emptyProvider struct{ name string }

func (p *emptyProvider) Name() string { return p.name }

func (p *emptyProvider) Generate(ctx context.Context, _ prompt.StructuredPrompt) (*provider.Result, error) {
	return &provider.Result{}, nil
}
