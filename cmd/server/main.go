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

	"github.com/suPer8Hu/vidblog/internal/app"
	"github.com/suPer8Hu/vidblog/internal/config"
	"github.com/suPer8Hu/vidblog/internal/db"
	"github.com/suPer8Hu/vidblog/internal/httpapi"
	"github.com/suPer8Hu/vidblog/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	svc, err := app.NewPipeline(ctx, cfg, gdb)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	limiter, closeLimiter, err := app.NewLimiter(ctx, cfg)
	if err != nil {
		log.Fatalf("rate limiter: %v", err)
	}
	defer closeLimiter()

	deps := httpapi.Deps{DB: gdb, Pipeline: svc, Limiter: limiter}

	// async job creation needs the broker; the API still serves without it
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Printf("rabbit unavailable, async jobs disabled: %v", err)
		} else {
			defer pub.Close()
			deps.Queue = pub
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("server listening addr=%s provider=%s", cfg.HTTPAddr, cfg.AIProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("server stopped")
}
