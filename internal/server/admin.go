package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/worldline-go/types"

	"github.com/rakunlabs/webhookgw/internal/configstore"
)

// configView is the admin-facing JSON shape of one configuration record.
// Alignment is nullable rather than merely omittable so the admin UI can
// tell "no alignment configured" apart from "alignment is an empty string".
type configView struct {
	Service   string             `json:"service"`
	Token     string             `json:"token"`
	Alignment types.Null[string] `json:"alignment"`
	Fields    string             `json:"fields"`
	Template  string             `json:"template"`
}

func toView(r configstore.Record) configView {
	v := configView{
		Service:  r.Service,
		Token:    r.Token,
		Fields:   r.Fields,
		Template: r.Template,
	}
	if r.Alignment != "" {
		v.Alignment = types.NewNull(r.Alignment)
	}
	return v
}

// ListConfigsAPI returns every configuration record.
func (s *Server) ListConfigsAPI(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		httpResponse(w, "failed to list configurations", http.StatusInternalServerError)
		return
	}

	views := make([]configView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}
	httpResponseJSON(w, views, http.StatusOK)
}

// GetConfigAPI returns a single configuration record.
func (s *Server) GetConfigAPI(w http.ResponseWriter, r *http.Request) {
	rest := s.trimRoutePrefix(r.URL.Path, "/api/config")
	service, token, ok := splitServiceToken(rest)
	if !ok {
		httpResponse(w, "expected /api/config/{service}/{token}", http.StatusNotFound)
		return
	}

	rec, err := s.store.Resolve(r.Context(), service, token)
	if err != nil {
		respondConfigStoreError(w, err)
		return
	}
	httpResponseJSON(w, toView(*rec), http.StatusOK)
}

// saveConfigRequest is the body accepted by SaveConfigAPI. A record is
// created when Token is empty and updated (preserving its existing Token)
// otherwise.
type saveConfigRequest struct {
	Service   string `json:"service"`
	Token     string `json:"token"`
	Alignment string `json:"alignment"`
	Fields    string `json:"fields"`
	Template  string `json:"template"`
}

// SaveConfigAPI creates a new configuration (minting a token) or updates an
// existing one, depending on whether Token is present in the request body.
func (s *Server) SaveConfigAPI(w http.ResponseWriter, r *http.Request) {
	var req saveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		rec, err := s.store.Create(r.Context(), configstore.Record{
			Service:   req.Service,
			Alignment: req.Alignment,
			Fields:    req.Fields,
			Template:  req.Template,
		})
		if err != nil {
			respondConfigStoreError(w, err)
			return
		}
		httpResponseJSON(w, toView(*rec), http.StatusCreated)
		return
	}

	rec, err := s.store.Update(r.Context(), req.Service, req.Token, req.Fields, req.Template, req.Alignment)
	if err != nil {
		respondConfigStoreError(w, err)
		return
	}
	httpResponseJSON(w, toView(*rec), http.StatusOK)
}

// DeleteConfigAPI removes a configuration record, and when it was the last
// record referencing its service, cascades into deleting that service's
// logged payload history.
func (s *Server) DeleteConfigAPI(w http.ResponseWriter, r *http.Request) {
	rest := s.trimRoutePrefix(r.URL.Path, "/api/config")
	service, token, ok := splitServiceToken(rest)
	if !ok {
		httpResponse(w, "expected /api/config/{service}/{token}", http.StatusNotFound)
		return
	}

	if err := s.store.Delete(r.Context(), service, token); err != nil {
		respondConfigStoreError(w, err)
		return
	}

	if s.logs != nil {
		remaining, err := s.store.List(r.Context())
		if err == nil && !anyRecordForService(remaining, service) {
			_ = s.logs.Remove(r.Context(), service)
		}
	}

	httpResponse(w, "deleted", http.StatusOK)
}

func anyRecordForService(records []configstore.Record, service string) bool {
	for _, r := range records {
		if r.Service == service {
			return true
		}
	}
	return false
}

// GenerateTokenAPI mints a token not currently in use, without persisting
// anything, so an admin UI can pre-fill a new configuration form.
func (s *Server) GenerateTokenAPI(w http.ResponseWriter, r *http.Request) {
	token, err := s.store.MintToken(r.Context())
	if err != nil {
		respondConfigStoreError(w, err)
		return
	}
	httpResponseJSON(w, map[string]string{"token": token}, http.StatusOK)
}

// WebhookLogTypesAPI lists the distinct service names currently configured,
// i.e. the set of services an admin can query recent payload logs for.
func (s *Server) WebhookLogTypesAPI(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		httpResponse(w, "failed to list configurations", http.StatusInternalServerError)
		return
	}

	seen := map[string]bool{}
	var services []string
	for _, rec := range records {
		if !seen[rec.Service] {
			seen[rec.Service] = true
			services = append(services, rec.Service)
		}
	}
	httpResponseJSON(w, services, http.StatusOK)
}

// RecentWebhookLogsAPI returns the most recent logged payloads for one
// service, newest first. The result is empty (not an error) when webhook
// payload logging is disabled.
func (s *Server) RecentWebhookLogsAPI(w http.ResponseWriter, r *http.Request) {
	rest := s.trimRoutePrefix(r.URL.Path, "/api/webhook-logs")
	service, ok := splitRecentPath(rest)
	if !ok {
		httpResponse(w, "expected /api/webhook-logs/{service}/recent", http.StatusNotFound)
		return
	}

	if s.logs == nil {
		httpResponseJSON(w, []any{}, http.StatusOK)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.logs.Recent(r.Context(), service, limit)
	if err != nil {
		httpResponse(w, "failed to read payload log", http.StatusInternalServerError)
		return
	}
	httpResponseJSON(w, entries, http.StatusOK)
}

func splitRecentPath(rest string) (service string, ok bool) {
	service, tail, ok := splitServiceToken(rest)
	if !ok || tail != "recent" {
		return "", false
	}
	return service, true
}

func respondConfigStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, configstore.ErrNotFound):
		httpResponse(w, "configuration not found", http.StatusNotFound)
	case errors.Is(err, configstore.ErrTokenCollision):
		httpResponse(w, "token already in use", http.StatusConflict)
	case errors.Is(err, configstore.ErrBadConfig):
		httpResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, configstore.ErrExhausted):
		httpResponse(w, "token space exhausted", http.StatusInternalServerError)
	default:
		httpResponse(w, "internal error", http.StatusInternalServerError)
	}
}
