package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.io/infrasutra/bharatmail/internal/api"
	"github.io/infrasutra/bharatmail/internal/auth"
	"github.io/infrasutra/bharatmail/internal/config"
	"github.io/infrasutra/bharatmail/internal/docstore"
	"github.io/infrasutra/bharatmail/internal/guard"
	"github.io/infrasutra/bharatmail/internal/mailbox"
	"github.io/infrasutra/bharatmail/internal/notify"
	"github.io/infrasutra/bharatmail/internal/sse"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()
	store, err := docstore.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open document store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	authManager, err := auth.New(cfg.AuthSecret, cfg.SessionMaxAge)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET not set; sessions reset on restart")
	}

	hub := sse.NewHub()
	dispatcher := notify.NewDispatcher(store, hub, logger, cfg.PushRate, cfg.PushBurst)
	mailService := mailbox.NewService(store, dispatcher, logger, cfg.EmailSuffix)
	pollLimiter := guard.NewLimiter(cfg.PollLimit, cfg.PollWindow)
	refreshLimiter := guard.NewLimiter(cfg.RefreshLimit, cfg.RefreshWindow)

	apiServer := api.NewServer(cfg, mailService, dispatcher, authManager, hub, pollLimiter, refreshLimiter, logger)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
}
