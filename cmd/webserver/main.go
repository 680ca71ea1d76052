package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/api"
	"github.com/datviz/datviz-app/internal/config"
	"github.com/datviz/datviz-app/internal/history"
	"github.com/datviz/datviz-app/internal/insights"
	"github.com/datviz/datviz-app/internal/iplookup"
	"github.com/datviz/datviz-app/internal/logging"
	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/postgres"
	"github.com/datviz/datviz-app/internal/ratelimit"
	"github.com/datviz/datviz-app/internal/router"
	"github.com/datviz/datviz-app/internal/session"
	"github.com/datviz/datviz-app/internal/stream"
	"github.com/datviz/datviz-app/internal/users"
)

func main() {
	cfg, err := config.LoadWeb()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Log, "webserver")

	// --- PostgreSQL ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	if err := postgres.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	key, err := users.ParseKey(cfg.EmailKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid EMAIL_KEY")
	}
	sealer, err := users.NewSealer(key)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid EMAIL_KEY")
	}
	userStore := users.NewStore(db, sealer, cfg.FreePromptCredits)

	// --- Redis ---
	sessionStore, err := session.NewStore(cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	// --- NATS (optional: events are dropped without it) ---
	var publisher api.Publisher
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "datviz-webserver"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, domain events disabled")
	} else {
		publisher = natsClient
	}

	// --- Analyzer ---
	var analyzer insights.Analyzer = insights.Offline{}
	if cfg.GeminiAPIKey != "" {
		g, err := insights.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create analyzer")
		}
		analyzer = g
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, using offline analyzer")
	}

	apiHandler := api.New(api.Config{
		AuthToken:      cfg.AuthToken,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, api.Deps{
		Users:     userStore,
		Analyzer:  analyzer,
		History:   history.NewBuffer(),
		Sessions:  sessionStore,
		Limiter:   ratelimit.NewLimiter(sessionStore.Client()),
		Publisher: publisher,
		IP:        iplookup.New(cfg.IPLookupEndpoint, cfg.IPLookupTimeout),
	})

	// --- Background stream ---
	streamConfig := stream.DefaultServerConfig()
	streamConfig.WorkerPoolSize = cfg.WorkerPoolSize
	streamConfig.MaxViewers = cfg.MaxViewers
	streamConfig.ReadTimeout = cfg.ReadTimeout
	streamConfig.WriteTimeout = cfg.WriteTimeout
	streamConfig.FrameInterval = cfg.FrameInterval
	streamServer := stream.NewServer(streamConfig)
	if err := streamServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start stream server")
	}

	handler := newRouter(routes{
		Pages:       router.NewPages(router.DefaultTable(), sessionStore.LoadFlags, cfg.AppName),
		API:         apiHandler.Routes(),
		Stream:      streamServer,
		Health:      streamServer.HandleHealth,
		Session:     session.Middleware(sessionStore, cfg.CookieSecure),
		TrustProxy:  cfg.TrustProxy,
		StillWidth:  streamConfig.DefaultWidth,
		StillHeight: streamConfig.DefaultHeight,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Int("worker_pool", streamConfig.WorkerPoolSize).
		Int("max_viewers", streamConfig.MaxViewers).
		Dur("frame_interval", streamConfig.FrameInterval).
		Str("redis_addr", cfg.RedisAddr).
		Str("nats_url", natsConfig.URL).
		Bool("gemini", cfg.GeminiAPIKey != "").
		Msg("DatViz web server starting")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")

		// Viewer connections are hijacked, so stop their loops first.
		if err := streamServer.Shutdown(); err != nil {
			log.Error().Err(err).Msg("stream shutdown error")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	<-idle

	if natsClient != nil {
		natsClient.Close()
	}
	if err := sessionStore.Close(); err != nil {
		log.Error().Err(err).Msg("session store close error")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}
	log.Info().Msg("server stopped")
}
