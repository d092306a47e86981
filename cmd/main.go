package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/logger/pkg/logger"
	"github.com/webchothuetro/chat-service/config"
	"github.com/webchothuetro/chat-service/internal/postgres"
	"github.com/webchothuetro/chat-service/internal/service"
	httpx "github.com/webchothuetro/chat-service/internal/transport/http"
	"github.com/webchothuetro/chat-service/internal/transport/ws"

	"github.com/joho/godotenv"
)

func main() {
	// --- config ---
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	messageRepo := postgres.NewMessageRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)

	if err := messageRepo.InitSchema(ctx); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	// --- services ---
	chatSvc := service.NewChatService(messageRepo)
	inboxSvc := service.NewInboxService(messageRepo)

	// --- WS Hub & gateway ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, userRepo, chatSvc)
	wsServer.SetPingInterval(cfg.PingInterval())
	wsServer.SetSendBuffer(cfg.WS.SendBuffer)

	// --- HTTP ---
	handler := httpx.NewHandler(chatSvc, inboxSvc, userRepo)
	router := httpx.NewRouter(handler, wsServer, cfg.HTTP.AllowedOrigins)
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: long-lived websocket connections share this server
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
