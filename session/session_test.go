package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobertis/querycache"
	"github.com/cobertis/querycache/httpfetch"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setup(t *testing.T, handler http.Handler) (*querycache.Cache, *httpfetch.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := httpfetch.NewClient(httpfetch.Options{BaseURL: srv.URL, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := querycache.New(querycache.Config{
		RetryCount:     -1,
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})
	t.Cleanup(func() { _ = cache.Close() })
	return cache, client
}

func TestLoad_DecodesPrincipal(t *testing.T) {
	var hits int
	cache, client := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, Path, r.URL.Path)
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","role":"admin","companyId":"co1","email":"admin@acme.test"}`))
	}))

	p, err := Load(context.Background(), cache, client)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "admin", p.Role)
	assert.Equal(t, "co1", p.CompanyID)
	assert.Equal(t, "admin@acme.test", p.Email)
	assert.Equal(t, 1, hits)

	// A second load within the stale window is served from cache.
	p2, err := Load(context.Background(), cache, client)
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, 1, hits)
}

func TestLoad_UnauthenticatedSurfacesAPIError(t *testing.T) {
	cache, client := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"not authenticated"}`))
	}))

	_, err := Load(context.Background(), cache, client)
	require.Error(t, err)
	var apiErr *httpfetch.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not authenticated", apiErr.Message)
}

func TestPrincipal_HasRole(t *testing.T) {
	p := &Principal{Role: "manager"}
	assert.True(t, p.HasRole("manager"))
	assert.True(t, p.HasRole("admin", "manager"))
	assert.False(t, p.HasRole("admin"))
	assert.False(t, p.HasRole())
}

func TestDecode_RejectsNonSuccessSnapshots(t *testing.T) {
	_, err := Decode(querycache.Snapshot{State: querycache.StateLoading})
	require.Error(t, err)

	wantErr := assert.AnError
	_, err = Decode(querycache.Snapshot{State: querycache.StateError, Err: wantErr})
	require.ErrorIs(t, err, wantErr)
}
