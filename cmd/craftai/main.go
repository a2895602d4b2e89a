package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"craftai/internal/adapters"
	"craftai/internal/app"
	"craftai/internal/config"
	"craftai/internal/server"
	"craftai/internal/usertoken"
	"craftai/internal/util"
	"craftai/pkg/ai"
	"craftai/pkg/domain"
	"craftai/pkg/entitlement"
	"craftai/pkg/imaging"
	"craftai/pkg/queue"
	"craftai/pkg/storage"
	"craftai/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	resolver, err := entitlement.NewRedisResolver(cfg.RedisAddr, cfg.RedisPassword, "")
	if err != nil {
		log.Fatalf("failed to init entitlement resolver: %v", err)
	}
	ledger, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init ledger: %v", err)
	}
	objectStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	stagingDir := cfg.StagingDir
	if stagingDir == "" {
		stagingDir = "staging"
	}
	staging, err := storage.NewStagingStore(stagingDir)
	if err != nil {
		log.Fatalf("failed to init staging store: %v", err)
	}
	orphans, err := queue.NewOrphanQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.OrphanQueueKey)
	if err != nil {
		log.Fatalf("failed to init orphan queue: %v", err)
	}

	generator, err := newTextGenerator(cfg)
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}
	imagingClient, err := imaging.NewClient(cfg.ImagingBaseURL, cfg.ImagingAPIKey)
	if err != nil {
		log.Fatalf("failed to init imaging client: %v", err)
	}

	presignTTL := time.Duration(cfg.PresignTTLMinutes) * time.Minute
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	appCore, err := app.New(app.Config{
		Resolver: resolver,
		Ledger:   ledger,
		Adapters: map[domain.Capability]app.Adapter{
			domain.CapabilityTextCompletion:    adapters.NewTextCompletion(generator),
			domain.CapabilityImageSynthesis:    adapters.NewImageSynthesis(imagingClient, objectStore, presignTTL),
			domain.CapabilityBackgroundRemoval: adapters.NewBackgroundRemoval(imagingClient, objectStore, presignTTL),
			domain.CapabilityObjectRemoval:     adapters.NewObjectRemoval(imagingClient, objectStore, presignTTL),
			domain.CapabilityDocumentReview:    adapters.NewDocumentReview(generator, adapters.PDFExtractor{}),
		},
		Orphans:        orphans,
		FreeLimit:      cfg.FreeLimit,
		AdapterTimeout: time.Duration(cfg.AdapterTimeoutSeconds) * time.Second,
		MaxConcurrent:  int64(cfg.MaxConcurrent),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:      appCore,
		Resolver: resolver,
		TokenVerifier: mustVerifier(usertoken.Config{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		}),
		Staging:        staging,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("craftai server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return orphans.Run(groupCtx, objectStore)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
	}
}

func newTextGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GenerationAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	default:
		return nil, errors.New("unknown generation provider")
	}
}

func mustVerifier(cfg usertoken.Config) *usertoken.Verifier {
	verifier, err := usertoken.NewVerifier(cfg)
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}
	return verifier
}
