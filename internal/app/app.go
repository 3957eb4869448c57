// Package app wires configuration into the pipeline service shared by the
// API server and the worker.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/vidblog/internal/ai"
	"github.com/suPer8Hu/vidblog/internal/config"
	"github.com/suPer8Hu/vidblog/internal/deepgram"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/ratelimit"
	"github.com/suPer8Hu/vidblog/internal/video"
	"github.com/suPer8Hu/vidblog/internal/wordpress"
	"gorm.io/gorm"
)

// NewPipeline builds the service with the production stage clients. The
// generation provider is resolved once from cfg.AIProvider.
func NewPipeline(ctx context.Context, cfg config.Config, gdb *gorm.DB) (*pipeline.Service, error) {
	reg := ai.NewRegistryFromConfig(&cfg)
	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, fmt.Errorf("ai provider %q: %w", cfg.AIProvider, err)
	}

	stages := pipeline.Stages{
		Fetcher:     video.NewFetcher(cfg.FFmpegPath, cfg.WorkDir, log.Default()),
		Transcriber: deepgram.NewClient(cfg.DeepgramBaseURL, cfg.DeepgramAPIKey, cfg.DeepgramModel),
		Generator:   ai.NewBlogGenerator(provider),
		Publisher:   wordpress.NewClient(),
	}
	return pipeline.NewService(pipeline.NewGormStore(gdb), stages, pipeline.Options{
		MaxTranscriptChars: cfg.MaxTranscriptChars,
		MaxVideoBytes:      cfg.MaxVideoBytes,
		StageTimeout:       cfg.StageTimeout,
	}), nil
}

// NewLimiter returns the limiter selected by RATE_LIMIT_BACKEND. The redis
// backend is pinged once; an unreachable server is an error.
func NewLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func() error, error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, func() error { return nil }, nil
	}
	if cfg.RateLimitBackend != "redis" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow), rdb.Close, nil
}
