package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/webhookgw/internal/cluster"
	"github.com/rakunlabs/webhookgw/internal/config"
	"github.com/rakunlabs/webhookgw/internal/configstore"
	"github.com/rakunlabs/webhookgw/internal/payloadlog"
	"github.com/rakunlabs/webhookgw/internal/server"
	"github.com/rakunlabs/webhookgw/internal/sink"
)

var (
	name    = "webhookgw"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version
	config.Version = version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	if cl != nil {
		go func() {
			if err := cl.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("cluster stopped", "error", err)
			}
		}()
	}

	var storeOpts []configstore.Option
	if cl != nil {
		storeOpts = append(storeOpts, configstore.WithLocker(cl))
	}
	store := configstore.New(cfg.Server.ConfigFile, storeOpts...)

	var logs *payloadlog.Logger
	if cfg.WebhookLogging.Enabled {
		logs = payloadlog.New(cfg.WebhookLogging.BaseDirectory,
			payloadlog.WithMaxBytes(cfg.WebhookLogging.MaxBytes),
			payloadlog.WithBackupCount(cfg.WebhookLogging.BackupCount),
			payloadlog.WithFileName(cfg.WebhookLogging.LogFileName),
		)
	}

	sinkClient, err := sink.New(cfg.Sink.URL, cfg.Sink.Username, cfg.Sink.Password,
		sink.WithAttempts(cfg.Sink.RetryAttempts),
		sink.WithTimeout(time.Duration(cfg.Sink.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create sink client: %w", err)
	}

	srv, err := server.New(ctx, cfg.Server, store, logs, sinkClient, cl)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	slog.Info("starting webhook gateway", "host", cfg.Server.Host, "port", cfg.Server.Port)

	return srv.Start(ctx)
}
