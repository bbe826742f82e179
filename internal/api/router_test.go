package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/catalogetl/internal/api/handler"
	"github.com/timmy/catalogetl/internal/app"
	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/service"
	"github.com/timmy/catalogetl/internal/storage"
)

const feedCSV = "name,sku,productUrl,weight,weightUnit\n" +
	"Tent,T-1,https://example.com/t,2,kg\n" +
	"Mug,M-1,https://example.com/m,,\n"

func setup(t *testing.T) (*app.App, *gin.Engine) {
	t.Helper()
	a, err := app.New(context.Background(), &config.Config{
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			Path:        filepath.Join(t.TempDir(), "catalog.db"),
			AutoMigrate: true,
		},
		Storage: config.StorageConfig{Type: "memory"},
		Queue:   config.QueueConfig{Provider: "memory"},
		ETL:     config.ETLConfig{ChunkSize: 100, BatchSize: 10, InvalidBatchSize: 10},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	a.Storage.(*storage.MemoryStorage).Put("feed.csv", []byte(feedCSV))

	return a, SetupRouter(a.Ingest, a.Search, RouterConfig{
		Mode:         "test",
		HealthChecks: map[string]handler.HealthCheck{"database": a.Ping},
	})
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, r := setup(t)
	w := do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	failing := SetupRouter(nil, nil, RouterConfig{
		Mode: "test",
		HealthChecks: map[string]handler.HealthCheck{
			"database": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	w = do(failing, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestStartJob(t *testing.T) {
	_, r := setup(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing key", map[string]string{"source": "vendor"}, http.StatusBadRequest},
		{"missing object", service.StartRequest{Source: "vendor", ObjectKey: "nope.csv"}, http.StatusNotFound},
		{"accepted", service.StartRequest{Source: "vendor", ObjectKey: "feed.csv"}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := do(r, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs []domain.ETLJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, domain.JobStatusRunning, list.Jobs[0].Status)

	w = do(r, http.MethodGet, "/api/v1/jobs/"+list.Jobs[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"done":false`)
}

func TestJobLookups(t *testing.T) {
	a, r := setup(t)
	job, err := a.Ingest.IngestFile(context.Background(), service.StartRequest{Source: "vendor", ObjectKey: "feed.csv"})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.ETLJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Contains(t, w.Body.String(), `"done":true`)

	w = do(r, http.MethodGet, "/api/v1/jobs/"+job.ID+"/invalid-items?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.InvalidItemPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].RowIndex)

	w = do(r, http.MethodGet, "/api/v1/items/T-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sku":"T-1"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/jobs/unknown", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/jobs/unknown/invalid-items", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/items/none", nil).Code)
}

func TestSearchUnavailable(t *testing.T) {
	_, r := setup(t)
	w := do(r, http.MethodPost, "/api/v1/search", service.SearchRequest{Query: "tent"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/api/v1/search", map[string]int{"top_k": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, r := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
