package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/config"
	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/export"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/mixdown"
)

// newEngine builds an empty library and editor from cfg.
func newEngine(cfg *config.Config, log *zap.Logger) *editor.Engine {
	decoder := &audio.Decoder{
		FFmpegPath: cfg.Audio.FFmpegPath,
		SampleRate: cfg.Audio.ExportSampleRate,
	}
	lib := library.New(decoder, cfg.Editor.DedupeTolerance, log.Named("library"))
	return editor.New(lib, editor.Options{
		TrackNames:   cfg.Editor.TrackNames,
		Duration:     cfg.Editor.Duration,
		Grid:         cfg.Editor.Grid,
		HistoryLimit: cfg.Editor.HistoryLimit,
		Logger:       log.Named("editor"),
	})
}

// newExporter wires the renderer with the optional Redis cache and MinIO
// uploader. The returned func releases them.
func newExporter(ctx context.Context, cfg *config.Config, log *zap.Logger) (*export.Exporter, func(), error) {
	renderer := mixdown.NewRenderer(log.Named("mixdown"))
	renderer.SampleRate = cfg.Audio.ExportSampleRate
	renderer.Channels = cfg.Audio.ExportChannels

	opts := export.Options{
		TTL:    cfg.Cache.TTL(),
		Prefix: cfg.Storage.Prefix,
		Logger: log.Named("export"),
	}
	cleanup := func() {}

	if cfg.Cache.Enabled {
		cache, err := export.NewRedisCache(ctx, &redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}, "", log.Named("cache"))
		if err != nil {
			return nil, nil, fmt.Errorf("mix cache: %w", err)
		}
		opts.Cache = cache
		cleanup = func() { _ = cache.Close() }
	}

	if cfg.Storage.Enabled {
		uploader, err := export.NewMinioUploader(ctx, export.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		}, log.Named("storage"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("object storage: %w", err)
		}
		opts.Uploader = uploader
	}

	return export.New(renderer, opts), cleanup, nil
}
