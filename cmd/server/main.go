package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/ratelimit"
	"chat-realtime/internal/redis"
	"chat-realtime/internal/store"
	"chat-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.Logger()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.BadgerPath, cfg.BadgerInMemory, log)
	if err != nil {
		return err
	}
	defer db.Close()

	var verifier auth.Verifier
	if cfg.JWKSIssuerURL != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, cfg.JWKSIssuerURL, log)
		if err != nil {
			return err
		}
		go jwks.Run(ctx)
		verifier = jwks
	} else {
		verifier = auth.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	authn := auth.NewService(verifier, db)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	limits := ratelimit.Config{Window: cfg.MessageRateLimitWindow, Max: cfg.MessageRateLimitMax}
	var limiter ratelimit.Limiter = ratelimit.NewSlidingWindow(limits)
	if cfg.RateLimitBackend == config.BackendRedis {
		limiter = ratelimit.NewShared(redisClient, limits, "ratelimit:message:")
	}

	opts := []ws.Option{ws.WithLogger(log), ws.WithMaxMessageLength(cfg.MaxMessageLength)}
	if cfg.MirrorEvents {
		opts = append(opts, ws.WithMirror(redisClient))
	}
	hub := ws.NewHub(db, authn, limiter, opts...)
	go hub.Run(ctx)

	handler := ws.NewHandler(ctx, hub, cfg.Origins(), cfg.SendBuffer)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	mux.HandleFunc("GET /rooms/{id}/presence", handler.ServePresence)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	errs := make(chan error, 1)
	go func() {
		log.Info("WebSocket server starting", "port", cfg.Port, "rateLimit", cfg.RateLimitBackend, "mirror", cfg.MirrorEvents)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	hub.Shutdown(shutdownCtx)
	return nil
}
