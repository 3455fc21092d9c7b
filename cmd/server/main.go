package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/auth"
	"github.com/lojf/formdesk/internal/cache"
	"github.com/lojf/formdesk/internal/config"
	"github.com/lojf/formdesk/internal/db"
	"github.com/lojf/formdesk/internal/handlers"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/services"
	"github.com/lojf/formdesk/internal/web"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(config.GetEnv("LOG_MODE", "dev", nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load(log)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set; every admin request will be rejected")
	}

	// Init DB (creates formdesk.db in working dir by default)
	if err := db.Init(cfg.DBDriver, cfg.DBDSN, log); err != nil {
		log.Fatal("db init failed", "error", err)
	}

	var schemaCache cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis init failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rc.Close()
		schemaCache = rc
		log.Info("schema cache: redis", "addr", cfg.RedisAddr)
	}

	sink := audit.NewDBSink(db.Conn())
	forms := services.NewForms(db.Conn(), sink, schemaCache, cfg.SchemaCacheTTL, log)
	env := &handlers.Env{
		Forms:       forms,
		Submissions: services.NewSubmissions(db.Conn(), forms, sink, log),
		Audit:       sink,
		Log:         log,
	}
	gate := auth.NewGate(cfg.JWTSecret, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.Router(env, gate),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("formdesk listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
