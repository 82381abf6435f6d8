package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var (
	Service = ""
	Version = ""
)

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Server         Server         `cfg:"server"`
	Sink           Sink           `cfg:"sink"`
	WebhookLogging WebhookLogging `cfg:"webhook_logging"`
	Telemetry      tell.Config    `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8000"`
	Host string `cfg:"host" default:"0.0.0.0"`

	// ConfigFile is the path to the flat-file webhook configuration store.
	ConfigFile string `cfg:"config_file" default:"./webhooks.conf"`

	// ForwardAuth, if set, forwards incoming requests to an external
	// authentication service before they reach the webhook/admin routes.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminToken protects the /api/* admin surface with bearer token
	// authentication. Requests must include "Authorization: Bearer <token>".
	// If unset, the admin surface is disabled (403 Forbidden on every route).
	AdminToken string `cfg:"admin_token" log:"-"`

	// Alan, if set, enables distributed clustering via UDP peer discovery so
	// multiple gateway instances serialize configuration-store writes
	// against each other instead of only within one process.
	Alan *alan.Config `cfg:"alan"`
}

// Sink configures the downstream HTTP endpoint rendered messages are
// forwarded to.
type Sink struct {
	URL      string `cfg:"url"`
	Username string `cfg:"username"`
	Password string `cfg:"password" log:"-"`

	TimeoutSeconds int `cfg:"timeout_seconds" default:"30"`
	RetryAttempts  int `cfg:"retry_attempts" default:"3"`
}

// WebhookLogging configures the per-service rotating payload log.
type WebhookLogging struct {
	Enabled       bool   `cfg:"enabled" default:"true"`
	BaseDirectory string `cfg:"base_directory" default:"logs/webhooks"`
	MaxBytes      int64  `cfg:"max_bytes" default:"10485760"`
	BackupCount   int    `cfg:"backup_count" default:"5"`
	LogFileName   string `cfg:"log_file_name" default:"payload.log"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("WEBHOOKGW_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
