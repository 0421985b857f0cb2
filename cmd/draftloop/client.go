package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/martinemde/draftloop/unifiedllm"
	"github.com/redis/go-redis/v9"
)

// clientOptions select the completion backend and its middleware.
type clientOptions struct {
	fake        bool
	cache       bool
	redisURL    string
	transcripts string
}

// buildClient assembles the completion client. Middleware runs logging
// first, then transcripts, then the cache, with retries closest to the
// provider. The returned cleanup closes the client and any Redis
// connection.
func buildClient(ctx context.Context, o clientOptions, model string, logger *slog.Logger) (*unifiedllm.Client, func(), error) {
	var client *unifiedllm.Client
	if o.fake {
		client = unifiedllm.NewClient(
			unifiedllm.WithProvider("fake", unifiedllm.NewFakeAdapter()),
			unifiedllm.WithDefaultProvider("fake"),
		)
	} else {
		client = unifiedllm.NewClientFromEnv(model)
		if len(client.Providers()) == 0 {
			return nil, nil, errors.New("no completion provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY, or use --fake")
		}
	}

	cleanup := func() { client.Close() }
	mws := []unifiedllm.Middleware{unifiedllm.LoggingMiddleware(logger)}
	if o.transcripts != "" {
		mws = append(mws, unifiedllm.TranscriptMiddleware(o.transcripts, logger))
	}

	switch {
	case o.redisURL != "":
		rdb, err := openRedis(ctx, o.redisURL)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		cache, err := unifiedllm.NewRedisCache(rdb)
		if err != nil {
			rdb.Close()
			client.Close()
			return nil, nil, err
		}
		mws = append(mws, unifiedllm.CacheMiddleware(cache, logger))
		cleanup = func() {
			client.Close()
			rdb.Close()
		}
	case o.cache:
		mws = append(mws, unifiedllm.CacheMiddleware(unifiedllm.NewMemoryCache(), logger))
	}

	policy := unifiedllm.DefaultRetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying completion", "attempt", attempt, "delay", delay, "error", err)
	}
	mws = append(mws, unifiedllm.RetryMiddleware(policy))
	client.Use(mws...)
	return client, cleanup, nil
}

// openRedis connects and pings so a bad URL fails before the run starts.
func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
