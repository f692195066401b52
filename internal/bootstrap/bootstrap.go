// Package bootstrap assembles the pose pipeline from configuration. The API
// server and the operator CLI share it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"posemind/internal/imagegen"
	"posemind/internal/infra"
	"posemind/internal/metrics"
	"posemind/internal/orchestrator"
	"posemind/internal/providers/chat"
	"posemind/internal/providers/pose"
	"posemind/internal/providers/qwen"
	"posemind/internal/providers/scene"
	"posemind/internal/storage"
	"posemind/internal/usage"
)

// Components is the wired pipeline plus the resources it owns.
type Components struct {
	Uploads *storage.FileStore
	Results *storage.FileStore
	Chat    *chat.Client
	Images  *qwen.Client
	Service *orchestrator.Service

	closers []func() error
}

// Build wires stores, model clients, quota and the orchestrator.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, m *metrics.Collector) (*Components, error) {
	uploads, err := storage.NewFileStore(cfg.UploadFolder)
	if err != nil {
		return nil, fmt.Errorf("upload store: %w", err)
	}
	results, err := storage.NewFileStore(cfg.ResultFolder)
	if err != nil {
		return nil, fmt.Errorf("result store: %w", err)
	}

	c := &Components{Uploads: uploads, Results: results}

	quotaStore, err := c.usageStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c.Chat = chat.NewClient(chat.Options{
		APIKey:  cfg.AIAPIKey,
		BaseURL: cfg.AIBaseURL,
		Model:   cfg.VisionModel,
		Timeout: cfg.APIRequestTimeout,
	})
	c.Images = qwen.NewClient(qwen.Options{
		APIKey:         cfg.ImageAPIKey,
		BaseURL:        cfg.ImageBaseURL,
		Model:          cfg.ImageModel,
		Logger:         &logger,
		RequestTimeout: cfg.APIRequestTimeout,
	})

	poses := pose.NewSuggester(pose.Options{Client: c.Chat, Count: cfg.NumPoses, Logger: &logger, Metrics: m})
	c.Service = orchestrator.NewService(orchestrator.Options{
		Scene: scene.NewAnalyzer(scene.Options{Client: c.Chat, Logger: &logger, Metrics: m}),
		Poses: poses,
		Illustrator: imagegen.NewGenerator(imagegen.Options{
			Client:   c.Images,
			Store:    results,
			Timeout:  cfg.GenerationTimeout,
			Interval: cfg.GenerationInterval,
			Logger:   &logger,
			Metrics:  m,
		}),
		Uploads:     uploads,
		Quota:       usage.NewGuard(quotaStore, cfg.DailyUsageLimit),
		Credentials: []orchestrator.CredentialChecker{c.Chat, c.Images},
		Count:       poses.Count(),
		Concurrency: cfg.PoseConcurrency,
		Logger:      &logger,
		Metrics:     m,
	})
	return c, nil
}

func (c *Components) usageStore(ctx context.Context, cfg *infra.Config) (usage.Store, error) {
	if cfg.UsageStore != "redis" {
		return usage.NewMemoryStore(), nil
	}
	client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, client.Close)
	return usage.NewRedisStore(client, ""), nil
}

// Close releases external connections.
func (c *Components) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
