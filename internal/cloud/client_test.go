package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, staticToken("test-token"), 0, nil)
	c.sleepFunc = noopSleep

	return c
}

func TestClient_GetShadowDecodesDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/things/device-1/shadow", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":   map[string]any{"reported": map[string]any{"on": true}},
			"version": 3,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-1", "")
	require.NoError(t, err)

	doc, version, err := c.GetShadow(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	assert.Equal(t, true, doc.State.Reported["on"])
}

func TestClient_GetShadowNotFoundClassifiesAsResourceNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such shadow"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-2", "")
	require.NoError(t, err)

	_, _, err = c.GetShadow(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrResourceNotFound)
}

func TestClient_UpdateShadowReturnsNewVersion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{"version": 5})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-3", "config")
	require.NoError(t, err)

	version, err := c.UpdateShadow(context.Background(), id, &sync.Document{}, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), version)
}

func TestClient_UpdateShadowConflictClassifiesAsConflict(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"stale version"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-4", "")
	require.NoError(t, err)

	_, err = c.UpdateShadow(context.Background(), id, &sync.Document{}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrConflict)
}

func TestClient_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"unavailable"}`))

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"version": 1})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-5", "")
	require.NoError(t, err)

	version, err := c.UpdateShadow(context.Background(), id, &sync.Document{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, 3, calls)
}

func TestClient_DeleteShadowSucceeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := shadowid.New("device-6", "")
	require.NoError(t, err)

	require.NoError(t, c.DeleteShadow(context.Background(), id))
}
