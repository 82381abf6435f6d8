package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rakunlabs/ada"
	"github.com/rakunlabs/webhookgw/internal/cluster"
	"github.com/rakunlabs/webhookgw/internal/config"
	"github.com/rakunlabs/webhookgw/internal/configstore"
	"github.com/rakunlabs/webhookgw/internal/payloadlog"
	"github.com/rakunlabs/webhookgw/internal/sink"

	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"
)

// Server is the HTTP front for the webhook gateway: the public ingestion
// route and the admin surface for managing configurations and inspecting
// recent payloads.
type Server struct {
	config config.Server

	server *ada.Server

	store   *configstore.Store
	logs    *payloadlog.Logger // nil when webhook payload logging is disabled
	sink    *sink.Client
	cluster *cluster.Cluster
}

// New wires the route table and middleware stack and returns a Server ready
// to Start.
func New(ctx context.Context, cfg config.Server, store *configstore.Store, logs *payloadlog.Logger, sinkClient *sink.Client, cl *cluster.Cluster) (*Server, error) {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{
		config:  cfg,
		server:  mux,
		store:   store,
		logs:    logs,
		sink:    sinkClient,
		cluster: cl,
	}

	baseGroup := mux.Group(cfg.BasePath)

	if cfg.ForwardAuth != nil {
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	baseGroup.GET("/health", s.HealthAPI)

	webhookGroup := baseGroup.Group("/webhook")
	webhookGroup.POST("/*", s.WebhookAPI)

	apiGroup := baseGroup.Group("/api")
	apiGroup.Use(s.adminAuthMiddleware())

	apiGroup.GET("/configs", s.ListConfigsAPI)
	apiGroup.GET("/config/*", s.GetConfigAPI)
	apiGroup.POST("/save-config", s.SaveConfigAPI)
	apiGroup.DELETE("/config/*", s.DeleteConfigAPI)
	apiGroup.POST("/analyze-payload", s.AnalyzePayloadAPI)
	apiGroup.POST("/test-config", s.TestConfigAPI)
	apiGroup.GET("/generate-token", s.GenerateTokenAPI)
	apiGroup.GET("/webhook-logs/types", s.WebhookLogTypesAPI)
	apiGroup.GET("/webhook-logs/*", s.RecentWebhookLogsAPI)

	return s, nil
}

// Start begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}

// healthResponse is the introspection body returned by HealthAPI.
type healthResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	WebhookTypes []string  `json:"webhook_types"`
	Timestamp    time.Time `json:"timestamp"`
}

// HealthAPI reports liveness plus the set of configured webhook types. A
// failure to list the configuration store is not fatal to the health
// check: it is reported as an empty webhook_types list rather than an
// error, since liveness must stay cheap and reliable even if the
// configuration file is briefly unreadable.
func (s *Server) HealthAPI(w http.ResponseWriter, r *http.Request) {
	var types []string
	if records, err := s.store.List(r.Context()); err == nil {
		seen := map[string]bool{}
		for _, rec := range records {
			if !seen[rec.Service] {
				seen[rec.Service] = true
				types = append(types, rec.Service)
			}
		}
	}

	httpResponseJSON(w, healthResponse{
		Status:       "ok",
		Version:      config.Version,
		WebhookTypes: types,
		Timestamp:    time.Now().UTC(),
	}, http.StatusOK)
}

// adminAuthMiddleware protects the /api/* surface. If no admin_token is
// configured, the entire surface is disabled (403) rather than left open.
func (s *Server) adminAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.config.AdminToken == "" {
				httpResponse(w, "admin token not configured", http.StatusForbidden)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				httpResponse(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(auth, "Bearer ")
			if token == auth || token != s.config.AdminToken {
				httpResponse(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
