package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/digkill/CatPortrait/internal/api"
	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/config"
	"github.com/digkill/CatPortrait/internal/database"
	"github.com/digkill/CatPortrait/internal/metrics"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/notify"
	"github.com/digkill/CatPortrait/internal/provider"
	"github.com/digkill/CatPortrait/internal/quiz"
	"github.com/digkill/CatPortrait/internal/ratelimit"
	"github.com/digkill/CatPortrait/internal/repository"
	"github.com/digkill/CatPortrait/internal/service"
	"github.com/digkill/CatPortrait/internal/storage"
	"github.com/digkill/CatPortrait/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNew(reg)

	notifier, err := notify.New(cfg.TelegramBotToken, cfg.TelegramOpsChatID, logr)
	if err != nil {
		log.Fatalf("ops notifier: %v", err)
	}

	verifier, err := auth.NewVerifier(cfg.ClerkJWTPublicKey, cfg.AuthJWTSecret, cfg.AuthIssuer)
	if err != nil {
		log.Fatalf("auth verifier: %v", err)
	}

	transport := provider.Transport{ProxyURL: cfg.OutboundProxy, Timeout: cfg.ProviderTimeout}
	proxyProvider, err := provider.NewProxyProvider(provider.ProxyConfig{
		BaseURL: cfg.ProxyBaseURL,
		APIKey:  cfg.ProxyAPIKey,
		Model:   cfg.ProxyModel,
		Size:    cfg.ProxyImageSize,
		Timeout: cfg.ProviderTimeout,
	}, transport, logr)
	if err != nil {
		log.Fatalf("proxy provider: %v", err)
	}
	vertexProvider := provider.NewVertexProvider(ctx, provider.VertexConfig{
		Project:     cfg.VertexProject,
		Location:    cfg.VertexLocation,
		APIKey:      cfg.VertexAPIKey,
		Model:       cfg.VertexModel,
		AspectRatio: cfg.ImageAspectRatio,
		Timeout:     cfg.ProviderTimeout,
	}, transport, logr)
	imagenProvider := provider.NewImagenProvider(ctx, provider.ImagenConfig{
		APIKey:      cfg.ImagenAPIKey,
		Model:       cfg.ImagenModel,
		AspectRatio: cfg.ImageAspectRatio,
		Timeout:     cfg.ProviderTimeout,
	}, transport, logr)

	for _, p := range []interface {
		provider.Provider
		provider.Availability
	}{vertexProvider, proxyProvider, imagenProvider} {
		if err := p.Available(ctx); err != nil {
			logr.Warn("image provider unavailable", "provider", p.Name(), "err", err)
		}
	}

	routes := []service.Route{
		{
			Name:     service.RouteDefault,
			HighTier: []provider.Provider{vertexProvider},
			LowTier:  []provider.Provider{proxyProvider},
		},
		{
			Name:    service.RouteFree,
			LowTier: []provider.Provider{proxyProvider, imagenProvider},
		},
		{
			Name:        service.RoutePower,
			RequireAuth: true,
			HighTier:    []provider.Provider{vertexProvider},
			LowTier:     []provider.Provider{imagenProvider},
		},
	}

	accountRepo := repository.NewAccountRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	guestRepo := repository.NewGuestRepository(db)
	imageRepo := repository.NewImageRepository(db)

	var quota service.GuestQuota
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logr.Warn("redis unreachable, guest quota fails open until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()
		quota = ratelimit.NewGuestLimiter(rdb, cfg.GuestTrialLimit, cfg.GuestTrialWindow)
	}

	var uploader service.ObjectUploader
	if cfg.S3Bucket != "" {
		u, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = u
	} else {
		logr.Warn("s3 bucket not configured, save-image disabled")
	}

	planService := service.NewPlanService(paymentRepo, []service.PlanOffer{
		{ID: models.PlanStandard, ProductID: cfg.CreemStandardProductID, Points: cfg.StandardPoints},
		{ID: models.PlanSuper, ProductID: cfg.CreemSuperProductID, Points: cfg.SuperPoints},
	}, logr)
	entitlementService := service.NewEntitlementService(service.EntitlementConfig{
		DefaultPoints:    cfg.DefaultPoints,
		GenerationCost:   cfg.GenerationCost,
		GuestTrialLimit:  cfg.GuestTrialLimit,
		GuestTrialWindow: cfg.GuestTrialWindow,
	}, accountRepo, guestRepo, quota, logr)
	generationService := service.NewGenerationService(planService, m, logr)
	ledgerService := service.NewLedgerService(accountRepo, guestRepo, notifier, m, cfg.GenerationCost, logr)
	portraitService := service.NewPortraitService(routes, entitlementService, generationService, ledgerService, logr)
	pointsService := service.NewPointsService(accountRepo, cfg.DefaultPoints)
	imageService := service.NewImageService(imageRepo, uploader, logr)
	paymentService := service.NewPaymentService(service.CreemConfig{
		APIKey:        cfg.CreemAPIKey,
		BaseURL:       cfg.CreemBaseURL,
		WebhookSecret: cfg.CreemWebhookSecret,
		SuccessURL:    cfg.CreemSuccessURL,
	}, paymentRepo, planService, notifier, m, logr)

	server := api.NewServer(cfg.ListenAddr, logr, api.Deps{
		Portraits: portraitService,
		Points:    pointsService,
		Images:    imageService,
		Payments:  paymentService,
		Quiz:      quiz.NewBank(),
		Verifier:  verifier,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:    db.PingContext,
	})

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("api server stopped", "err", err)
	}
}
