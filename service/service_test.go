package service

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandle_DefaultStatus(t *testing.T) {
	h := &HealthzServer{}
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, 200, rec.Code)
	var health Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.LastRunID)
}

func TestHealthzHandle_ReportsLastRun(t *testing.T) {
	svc := New(func() Health {
		return Health{
			Status:        "ok",
			Version:       "v0.1.0",
			LastRunID:     "run-7",
			LastRunResult: "completed",
		}
	})

	rec := httptest.NewRecorder()
	svc.Healthz.Handle(rec, httptest.NewRequest("GET", "/healthz", nil))

	var health Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "run-7", health.LastRunID)
	assert.Equal(t, "completed", health.LastRunResult)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
