// Package api exposes the portrait generator over JSON HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/quiz"
	"github.com/digkill/CatPortrait/internal/service"
)

type PortraitCreator interface {
	Create(ctx context.Context, req service.PortraitRequest) (*service.Portrait, error)
}

type PointsManager interface {
	Balance(ctx context.Context, userID string) (int, error)
	Adjust(ctx context.Context, userID string, amount int, kind models.TransactionType, reason string) (int, error)
	History(ctx context.Context, userID string, limit int) ([]models.PointTransaction, error)
}

type ImageGallery interface {
	Save(ctx context.Context, userID string, in service.SaveImageInput) (*models.Image, error)
	List(ctx context.Context, ownerID string, page, limit int) (*service.ImagePage, error)
	SetVisibility(ctx context.Context, userID, imageID string, public bool) error
	Stats(ctx context.Context, imageID string) (*models.ImageStats, error)
	RecordEvent(ctx context.Context, userID, imageID string, action models.ImageAction, value int) (*models.ImageStats, error)
}

type PaymentProcessor interface {
	CreateCheckout(ctx context.Context, userID, planID string) (*service.Checkout, error)
	Verify(ctx context.Context, userID, checkoutID string) (*service.PaymentState, error)
	Cancel(ctx context.Context, userID, checkoutID string) error
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type QuestionPicker interface {
	Pick(stage int) (quiz.Question, error)
}

// Deps are the collaborators behind the routes. Metrics and Health are
// optional.
type Deps struct {
	Portraits PortraitCreator
	Points    PointsManager
	Images    ImageGallery
	Payments  PaymentProcessor
	Quiz      QuestionPicker
	Verifier  *auth.Verifier
	Metrics   http.Handler
	Health    func(ctx context.Context) error
}

type Server struct {
	addr   string
	log    *slog.Logger
	deps   Deps
	router *chi.Mux
}

func NewServer(addr string, log *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:   addr,
		log:    log,
		deps:   deps,
		router: r,
	}

	r.Get("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	r.Post("/api/webhooks/creem", s.handleCreemWebhook)
	r.Post("/api/generate-quiz", s.handleQuiz)

	r.Group(func(api chi.Router) {
		api.Use(auth.Middleware(deps.Verifier, log))

		api.Post("/api/generate-cat", s.handleGenerate(service.RouteDefault))
		api.Post("/api/generate-cat/free", s.handleGenerate(service.RouteFree))
		api.Post("/api/generate-cat/power", s.handleGenerate(service.RoutePower))
		api.Get("/api/images", s.handleListImages)
		api.Get("/api/images/stats", s.handleImageStats)
		api.Post("/api/images/stats", s.handleImageEvent)

		api.Group(func(protected chi.Router) {
			protected.Use(auth.RequireUser)
			protected.Get("/api/points", s.handleGetPoints)
			protected.Post("/api/points", s.handleAdjustPoints)
			protected.Get("/api/points/history", s.handlePointsHistory)
			protected.Post("/api/images", s.handleImageVisibility)
			protected.Post("/api/save-image", s.handleSaveImage)
			protected.Post("/api/payment", s.handleCreatePayment)
			protected.Put("/api/payment", s.handleCancelPayment)
			protected.Get("/api/payment/verify", s.handleVerifyPayment)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Generation walks up to three providers with a 30s budget each.
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.log.Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
