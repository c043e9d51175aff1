package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"world-chat/internal/api"
	"world-chat/internal/auth"
	"world-chat/internal/chat"
	"world-chat/internal/config"
	"world-chat/internal/db"
	"world-chat/internal/logging"
	"world-chat/internal/messaging"
	"world-chat/internal/metrics"
	"world-chat/internal/middleware"
	"world-chat/internal/presence"
	"world-chat/internal/reaction"
	"world-chat/internal/repository"
	"world-chat/internal/session"
	"world-chat/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type stores struct {
	messages  repository.MessageRepo
	reactions repository.ReactionRepo
	profiles  repository.ProfileRepo
	pingers   map[string]api.Pinger
	closers   []func()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	s := &stores{pingers: map[string]api.Pinger{}}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, messages live in memory only")
		mem := repository.NewMemoryStore()
		s.messages, s.reactions, s.profiles = mem, mem, mem
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			s.close()
			return nil, err
		}
		s.messages = repository.NewMessagesRepo(pool, log)
		s.reactions = repository.NewReactionsRepo(pool, log)
		s.profiles = repository.NewProfileRepo(pool, log)
		s.pingers["postgres"] = pool
	}
	return s, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openPresence(ctx context.Context, cfg *config.Config, s *stores, log zerolog.Logger) (presence.Store, error) {
	if cfg.RedisURL == "" {
		return presence.NewMemoryStore(), nil
	}
	rs, err := presence.Dial(ctx, cfg.RedisURL, cfg.PresenceKey)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() {
		if err := rs.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	})
	s.pingers["redis"] = rs
	return rs, nil
}

func main() {
	boot := logging.New("info", "json")

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("env", cfg.Env).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}
	defer st.close()

	online, err := openPresence(ctx, cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open presence store")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	hub := chat.NewHub(m, log)
	pipeline := messaging.NewPipeline(st.messages, st.reactions, st.profiles, hub, messaging.Options{
		MaxLength:  cfg.MaxMessageLength,
		EditWindow: cfg.EditWindow,
	}, m, log)

	dispatcher := chat.NewDispatcher(chat.Deps{
		Hub:         hub,
		Sessions:    session.NewRegistry(),
		Presence:    online,
		Pipeline:    pipeline,
		Reactions:   reaction.NewEngine(st.messages, st.reactions, log),
		Profiles:    st.profiles,
		TypingQuiet: cfg.TypingTimeout,
		Metrics:     m,
		Log:         log,
	})

	cleaner := tasks.NewRetentionCleaner(st.messages, cfg.Retention, cfg.RetentionSchedule, log)
	if err := cleaner.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule retention")
	}

	var verifier *auth.Verifier
	if cfg.AuthKey != "" {
		verifier = auth.NewVerifier(cfg.AuthKey)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", middleware.Authenticate(verifier, log)(chat.ServeWS(dispatcher, chat.HandlerConfig{
		Pump: chat.PumpConfig{
			PingPeriod:    cfg.PingPeriod,
			PongWait:      cfg.PongWait,
			WriteWait:     cfg.WriteWait,
			MaxFrameBytes: cfg.MaxFrameBytes,
		},
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)))
	mux.Handle("GET /api/messages", api.HistoryHandler(st.messages, pipeline, log))
	mux.Handle("GET /api/presence", api.PresenceHandler(online, log))
	mux.Handle("GET /healthz", api.HealthHandler(st.pingers))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	hub.Shutdown()
	dispatcher.Typing().Close()

	select {
	case <-cleaner.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("retention sweep still running at exit")
	}

	// let pumps flush close frames and run their disconnect paths
	time.Sleep(500 * time.Millisecond)
	log.Info().Msg("graceful shutdown complete")
}
