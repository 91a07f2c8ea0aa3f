package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/alert"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/config"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline"
)

func TestHealthzHandler_Healthy(t *testing.T) {
	t.Parallel()

	health := pipeline.NewHealth("monad")
	health.RecordSuccess(10 * time.Millisecond)

	rec := httptest.NewRecorder()
	healthzHandler(health, slog.Default())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "monad", snap.Source)
	assert.Equal(t, string(pipeline.HealthStatusHealthy), snap.Status)
}

func TestHealthzHandler_Unhealthy(t *testing.T) {
	t.Parallel()

	health := pipeline.NewHealth("monad")
	for i := 0; i < pipeline.DefaultUnhealthyThreshold; i++ {
		health.RecordFailure()
	}

	rec := httptest.NewRecorder()
	healthzHandler(health, slog.Default())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildAlerter_LogOnly(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Alert.Cooldown = time.Minute

	a := buildAlerter(cfg, slog.Default())
	_, ok := a.(*alert.MultiAlerter)
	require.True(t, ok)
}
