package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	"github.com/sifan077/PowerStash/internal/infra/postgres"
	"github.com/sifan077/PowerStash/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "s3cret"

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type handlerFixture struct {
	app     *fiber.App
	files   repository.FileRepository
	batches repository.BatchRepository
}

func newHandlerFixture(t *testing.T, apiKey string) *handlerFixture {
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

	f := &handlerFixture{
		app:     fiber.New(),
		files:   repository.NewFileRepository(db),
		batches: repository.NewBatchRepository(db),
	}
	records := RecordDeps{
		Files:   f.files,
		Batches: f.batches,
		Links:   service.Links{Host: "t.me", BotUsername: "stash_bot"},
		Now:     func() time.Time { return testNow },
	}
	stats := service.NewStatsService(f.files, f.batches, repository.NewUserRepository(db), repository.NewDeliveryEventRepository(db))

	NewHealthHandler(nil).Register(f.app)
	NewAPIHandler(APIDeps{Records: records, Stats: stats, APIKey: apiKey}).Register(f.app)
	NewLandingHandler(records).Register(f.app)
	return f
}

func (f *handlerFixture) addFile(t *testing.T, name string, ttl int) *model.FileRecord {
	t.Helper()
	uploaded := testNow.Add(-30 * time.Minute)
	file := &model.FileRecord{
		StorageChannelID: -1001,
		StorageMessageID: 7,
		Name:             name,
		Type:             "Document",
		Size:             2048,
		UploaderID:       1,
		UploadedAt:       uploaded,
		TTLMinutes:       ttl,
		ExpiryAt:         model.ExpiryFor(uploaded, ttl),
	}
	require.NoError(t, f.files.Create(context.Background(), file))
	return file
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t, "")
	resp, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestReady(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(nil,
		ReadinessCheck{Name: "database", Pinger: PingFunc(func(context.Context) error { return nil })},
		ReadinessCheck{Name: "redis", Pinger: PingFunc(func(context.Context) error { return errors.New("connection refused") })},
	).Register(app)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "degraded", payload.Status)
	assert.Equal(t, "ok", payload.Checks["database"])
	assert.Equal(t, "connection refused", payload.Checks["redis"])
}

func TestLanding(t *testing.T) {
	f := newHandlerFixture(t, "")
	live := f.addFile(t, "Holiday <Photos>.zip", 0)
	expired := f.addFile(t, "old.pdf", 10)

	t.Run("renders live file", func(t *testing.T) {
		token := link.Encode(link.KindFile, live.ID)
		resp, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/s/"+token, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, body, "Holiday &lt;Photos&gt;.zip")
		assert.Contains(t, body, "https://t.me/stash_bot?start="+token)
		assert.Contains(t, body, "2.0 KiB")
		assert.Contains(t, body, "no expiry")
	})

	t.Run("expired file is gone", func(t *testing.T) {
		resp, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/s/"+link.Encode(link.KindFile, expired.ID), nil))
		assert.Equal(t, http.StatusGone, resp.StatusCode)
	})

	t.Run("unknown batch", func(t *testing.T) {
		resp, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/s/"+link.Encode(link.KindBatch, 42), nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed token", func(t *testing.T) {
		resp, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/s/%21%21", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI(t *testing.T) {
	f := newHandlerFixture(t, testAPIKey)
	f.addFile(t, "a.pdf", 0)
	batch := &model.BatchRecord{
		Name:             "Pack",
		StorageChannelID: -1001,
		StartMessageID:   100,
		EndMessageID:     105,
		CreatorID:        1,
		CreatedAt:        testNow,
	}
	require.NoError(t, f.batches.Create(context.Background(), batch))

	t.Run("rejects missing key", func(t *testing.T) {
		resp, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stats with header key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("X-API-Key", testAPIKey)
		resp, body := do(t, f.app, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats service.Stats
		require.NoError(t, json.Unmarshal([]byte(body), &stats))
		assert.Equal(t, int64(1), stats.Files)
		assert.Equal(t, int64(1), stats.Batches)
		assert.Equal(t, int64(2048), stats.TotalBytes)
	})

	t.Run("record with bearer key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records/"+link.Encode(link.KindBatch, batch.ID), nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		resp, body := do(t, f.app, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var view RecordView
		require.NoError(t, json.Unmarshal([]byte(body), &view))
		assert.Equal(t, link.KindBatch, view.Kind)
		assert.Equal(t, 6, view.FileCount)
		assert.Nil(t, view.ExpiresAt)
	})
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	f := newHandlerFixture(t, "")
	resp, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
