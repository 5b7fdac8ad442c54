package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	"github.com/sifan077/PowerStash/internal/http/middleware"
	"github.com/sifan077/PowerStash/internal/infra/postgres"
	"github.com/sifan077/PowerStash/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()

	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, postgres.AutoMigrate(context.Background(), db,
		&model.FileRecord{}, &model.BatchRecord{}, &model.User{}, &model.DeliveryEvent{},
	))

	files := repository.NewFileRepository(db)
	batches := repository.NewBatchRepository(db)
	return New(Dependencies{
		APIKey:  apiKey,
		Files:   files,
		Batches: batches,
		Links:   service.Links{Host: "t.me", BotUsername: "stash_bot"},
		Stats: service.NewStatsService(files, batches,
			repository.NewUserRepository(db), repository.NewDeliveryEventRepository(db)),
	})
}

func TestServerAssignsRequestID(t *testing.T) {
	s := newTestServer(t, "")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(middleware.RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-1")
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "trace-1", resp.Header.Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, strings.Repeat("x", 65))
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(middleware.RequestIDHeader), 36)
}

func TestServerPreflight(t *testing.T) {
	s := newTestServer(t, "key")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodOptions, "/api/stats", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), middleware.APIKeyHeader)
}

func TestServerWithoutRedisDoesNotLimit(t *testing.T) {
	s := newTestServer(t, "")

	for i := 0; i < 5; i++ {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
