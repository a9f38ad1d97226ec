package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/webglow/voice-support/backend/internal/config"
	"github.com/webglow/voice-support/backend/internal/handler"
	"github.com/webglow/voice-support/backend/internal/service/notify"
	"github.com/webglow/voice-support/backend/internal/service/session"
	"github.com/webglow/voice-support/backend/internal/service/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Pick the call-log repository: Postgres when DATABASE_URL is set,
	// otherwise process memory.
	var store storage.Storage
	if cfg.Database.Enabled() {
		gormStore, err := storage.NewGormStorage(cfg.Database.URL)
		if err != nil {
			log.Fatalf("failed to initialize database storage: %v", err)
		}
		store = gormStore
		log.Println("Database storage initialized successfully")
	} else {
		store = storage.NewMemoryStorage()
		log.Println("DATABASE_URL 未配置，通话记录仅保存在进程内存中")
	}

	// Initialize notification service
	notifier := notify.New(cfg.Notify)
	if notifier != nil {
		log.Println("Notification service initialized successfully")
	} else {
		log.Println("Resend 凭证未配置，跳过转写邮件通知功能")
	}

	// Session store and liveness sweeper for the call relay
	sessions := session.NewStore()
	sweeper := session.NewSweeper(sessions, cfg.Relay.KeepAliveInterval, cfg.Relay.SessionTimeout)
	go sweeper.Run(ctx)

	router := handler.NewRouter(sessions, store, notifier, cfg.Relay)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("WebGlow voice-support backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
