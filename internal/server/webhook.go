package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/worldline-go/types"

	"github.com/rakunlabs/webhookgw/internal/configstore"
	"github.com/rakunlabs/webhookgw/internal/pattern"
	"github.com/rakunlabs/webhookgw/internal/payloadlog"
	"github.com/rakunlabs/webhookgw/internal/render"
	"github.com/rakunlabs/webhookgw/internal/sink"
)

// maxWebhookBodyBytes caps how much of an inbound request body is read into
// memory before it's rejected; arbitrarily large payloads are not a
// legitimate webhook use case and shouldn't be able to exhaust memory.
const maxWebhookBodyBytes = 5 << 20

// WebhookAPI receives an inbound webhook, resolves its (service, token)
// pair against the configuration store, extracts and renders the
// configured message and forwards it to the sink synchronously. Ingestion
// always responds 200 once the (service, token) pair is known: failures
// downstream of resolution are reported in the response body and payload
// log rather than reflected in the HTTP status, so the calling webhook
// provider never retries in response to an operator-side misconfiguration
// or a sink outage.
func (s *Server) WebhookAPI(w http.ResponseWriter, r *http.Request) {
	rest := s.trimRoutePrefix(r.URL.Path, "/webhook")
	service, token, ok := splitServiceToken(rest)
	if !ok {
		httpResponse(w, "expected /webhook/{service}/{token}", http.StatusNotFound)
		return
	}
	service = strings.ToLower(service)

	rec, err := s.store.Resolve(r.Context(), service, token)
	if err != nil {
		if errors.Is(err, configstore.ErrNotFound) {
			httpResponse(w, "unknown webhook", http.StatusNotFound)
			return
		}
		httpResponse(w, "configuration lookup failed", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		httpResponse(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBodyBytes {
		httpResponse(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	sourceIP := remoteIP(r)
	userAgent := r.UserAgent()

	if len(bytes.TrimSpace(body)) == 0 {
		httpIngestResponse(w, "success", "empty payload accepted", "", "")
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		httpIngestResponse(w, "success", "empty payload accepted", "", "")
		return
	}

	roots, err := pattern.Parse(rec.Fields)
	if err != nil {
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusFailure, "", body)
		httpIngestResponse(w, "failure", "configuration error: stored field pattern no longer parses", "", "")
		return
	}

	values := pattern.Extract(payload, roots)

	message, err := render.Render(rec.Template, values)
	if err != nil {
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusFailure, "", body)
		httpIngestResponse(w, "failure", "configuration error: stored template no longer renders", "", "")
		return
	}

	serviceToken := service + "_" + token

	sendErr := s.sink.Send(r.Context(), sink.Message{
		Message:         message,
		AlignedResource: rec.Alignment,
	})

	switch {
	case sendErr == nil:
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusSuccess, message, body)
		httpIngestResponse(w, "success", "forwarded", message, serviceToken)
	case errors.Is(sendErr, sink.ErrRejected):
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusFailure, message, body)
		httpIngestResponse(w, "failure", "sink rejected message", message, serviceToken)
	case errors.Is(sendErr, sink.ErrUnavailable):
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusFailure, message, body)
		httpIngestResponse(w, "failure", "sink unavailable", message, serviceToken)
	default:
		s.logAttempt(r.Context(), service, token, sourceIP, userAgent, payloadlog.StatusFailure, message, body)
		httpIngestResponse(w, "failure", "failed to forward message", message, serviceToken)
	}
}

// logAttempt records the outcome of one webhook delivery attempt. Payload
// logging is best-effort: a failure here is swallowed and never turned into
// an error response for the webhook caller.
func (s *Server) logAttempt(ctx context.Context, service, token, sourceIP, userAgent string, status payloadlog.ProcessingStatus, generatedMessage string, body []byte) {
	if s.logs == nil {
		return
	}

	entry := payloadlog.Entry{
		WebhookType:      service,
		Token:            token,
		Payload:          json.RawMessage(body),
		SourceIP:         sourceIP,
		UserAgent:        userAgent,
		ProcessingStatus: status,
		ContentLength:    types.NewNull(len(body)),
	}
	if generatedMessage != "" {
		entry.GeneratedMessage = types.NewNull(generatedMessage)
	}

	_ = s.logs.Append(ctx, service, entry)
}

// remoteIP prefers a forwarded-for hint (set by a front proxy) and falls
// back to the direct connection's address.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
