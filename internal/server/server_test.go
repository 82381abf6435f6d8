package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/webhookgw/internal/config"
	"github.com/rakunlabs/webhookgw/internal/configstore"
	"github.com/rakunlabs/webhookgw/internal/payloadlog"
	"github.com/rakunlabs/webhookgw/internal/sink"
)

func newTestServer(t *testing.T, sinkHandler http.HandlerFunc) (*httptest.Server, *configstore.Store) {
	t.Helper()

	sinkSrv := httptest.NewServer(sinkHandler)
	t.Cleanup(sinkSrv.Close)

	store := configstore.New(filepath.Join(t.TempDir(), "webhooks.conf"))
	logs := payloadlog.New(t.TempDir())

	sinkClient, err := sink.New(sinkSrv.URL, "", "")
	require.NoError(t, err)

	srv, err := New(context.Background(), config.Server{AdminToken: "secret"}, store, logs, sinkClient, nil)
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.server)
	t.Cleanup(httpSrv.Close)

	return httpSrv, store
}

func TestWebhookEndToEnd(t *testing.T) {
	httpSrv, store := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec, err := store.Create(context.Background(), configstore.Record{
		Service:  "github",
		Fields:   "action,pull_request{title}",
		Template: `PR $action$: $pull_request.title$`,
	})
	require.NoError(t, err)

	body := []byte(`{"action":"opened","pull_request":{"title":"Fix bug"}}`)
	resp, err := http.Post(httpSrv.URL+"/webhook/github/"+rec.Token, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookUnknownTokenIsNotFound(t *testing.T) {
	httpSrv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := http.Post(httpSrv.URL+"/webhook/github/deadbeef", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookSinkRejectionStillRespondsOK(t *testing.T) {
	httpSrv, store := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rec, err := store.Create(context.Background(), configstore.Record{
		Service:  "github",
		Fields:   "action",
		Template: `$action$`,
	})
	require.NoError(t, err)

	resp, err := http.Post(httpSrv.URL+"/webhook/github/"+rec.Token, "application/json", bytes.NewReader([]byte(`{"action":"x"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "failure", body.Status)
	require.Equal(t, "sink rejected message", body.Message)
}

func TestWebhookEmptyBodyAcceptedWithoutSinkCall(t *testing.T) {
	called := false
	httpSrv, store := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec, err := store.Create(context.Background(), configstore.Record{
		Service:  "github",
		Fields:   "action",
		Template: `$action$`,
	})
	require.NoError(t, err)

	resp, err := http.Post(httpSrv.URL+"/webhook/github/"+rec.Token, "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, called)

	var body ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "success", body.Status)
	require.Equal(t, "empty payload accepted", body.Message)
}

func TestWebhookLowercasesServiceSegment(t *testing.T) {
	httpSrv, store := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec, err := store.Create(context.Background(), configstore.Record{
		Service:  "github",
		Fields:   "action",
		Template: `$action$`,
	})
	require.NoError(t, err)

	resp, err := http.Post(httpSrv.URL+"/webhook/GitHub/"+rec.Token, "application/json", bytes.NewReader([]byte(`{"action":"x"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRequiresBearerToken(t *testing.T) {
	httpSrv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := http.Get(httpSrv.URL + "/api/configs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminCreateListGetDelete(t *testing.T) {
	httpSrv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client := &http.Client{}
	do := func(method, path string, body any) *http.Response {
		var reader *bytes.Reader
		if body != nil {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, httpSrv.URL+path, reader)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret")
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	createResp := do(http.MethodPost, "/api/save-config", saveConfigRequest{
		Service:  "gitlab",
		Fields:   "action",
		Template: "$action$",
	})
	defer createResp.Body.Close()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	var created configView
	require.NoError(t, json.NewDecoder(createResp.Body).Decode(&created))
	require.NotEmpty(t, created.Token)

	listResp := do(http.MethodGet, "/api/configs", nil)
	defer listResp.Body.Close()
	var list []configView
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)

	getResp := do(http.MethodGet, "/api/config/gitlab/"+created.Token, nil)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	deleteResp := do(http.MethodDelete, "/api/config/gitlab/"+created.Token, nil)
	defer deleteResp.Body.Close()
	require.Equal(t, http.StatusOK, deleteResp.StatusCode)

	getAfterDelete := do(http.MethodGet, "/api/config/gitlab/"+created.Token, nil)
	defer getAfterDelete.Body.Close()
	require.Equal(t, http.StatusNotFound, getAfterDelete.StatusCode)
}

func TestHealthDoesNotRequireAuth(t *testing.T) {
	httpSrv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := http.Get(httpSrv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
