package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
)

func newTestWebhookManager() *OutboundWebhookManager {
	owm := NewOutboundWebhookManager("test-node", logging.NewWriterLogger("webhook-test", &bytes.Buffer{}, logging.ERROR))
	owm.backoff = func(int) time.Duration { return 0 }
	return owm
}

func TestWebhookDeliveryWithRetryAndSignature(t *testing.T) {
	var (
		mu       sync.Mutex
		bodies   [][]byte
		sigs     []string
		attempts atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		sigs = append(sigs, r.Header.Get("X-Webhook-Signature"))
		mu.Unlock()
		// Первая попытка падает
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	owm := newTestWebhookManager()
	hook := owm.AddWebhook(OutboundWebhook{Name: "ci", URL: srv.URL, Secret: "s3cret", Events: []string{eventbus.EventBuildCompleted}, RetryCount: 2})

	bus := eventbus.NewMemoryBus(4)
	_, err := owm.Attach(context.Background(), bus)
	require.NoError(t, err)

	ev, err := eventbus.NewEnvelope("pipeline", eventbus.EventBuildCompleted, eventbus.BuildCompletedPayload{BuildID: "b7", Faces: 3})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	other, _ := eventbus.NewEnvelope("pipeline", "Other", nil)
	require.NoError(t, bus.Publish(context.Background(), other))
	require.NoError(t, bus.Close())
	owm.Wait()

	assert.Equal(t, int32(2), attempts.Load(), "одна неудача и один повтор; Other не отправлен")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, GenerateSignature(bodies[1], "s3cret"), sigs[1])
	assert.True(t, strings.HasPrefix(sigs[1], "sha256="))

	var got OutboundWebhookEvent
	require.NoError(t, json.Unmarshal(bodies[1], &got))
	assert.Equal(t, ev.ID, got.EventID)
	assert.Equal(t, "test-node", got.ServerID)
	var payload eventbus.BuildCompletedPayload
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "b7", payload.BuildID)

	stored := owm.GetWebhooks()
	require.Len(t, stored, 1)
	assert.Equal(t, hook.ID, stored[0].ID)
	assert.NotNil(t, stored[0].LastUsed)
	assert.Zero(t, stored[0].FailureCount)
}

func TestWebhookFailureCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	owm := newTestWebhookManager()
	owm.AddWebhook(OutboundWebhook{Name: "all", URL: srv.URL, Events: []string{"*"}, RetryCount: 1})

	ev, _ := eventbus.NewEnvelope("test", "Anything", nil)
	owm.Dispatch(ev)
	owm.Wait()

	assert.Equal(t, 1, owm.GetWebhooks()[0].FailureCount)
	assert.True(t, owm.DeleteWebhook(1))
	assert.False(t, owm.DeleteWebhook(1))
}

func TestWebhookAdminRoutes(t *testing.T) {
	f := newFixture(t)
	token, err := f.issuer.Generate("ops", true)
	require.NoError(t, err)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/webhooks", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, req)
		return w
	}

	w := post(`{"name":"ci","url":"http://127.0.0.1:1/hook","secret":"x","events":["BuildCompleted"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), `"secret"`)

	w = post(`{"name":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.admin(t, http.MethodGet, "/api/admin/webhooks", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"ci"`)

	w = f.admin(t, http.MethodDelete, "/api/admin/webhooks/1", token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.admin(t, http.MethodDelete, "/api/admin/webhooks/1", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.admin(t, http.MethodDelete, "/api/admin/webhooks/abc", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
