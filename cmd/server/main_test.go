package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
	assert.NoError(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}))
}

func TestBuildAppInMemory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Config{
		AuthSecret:            "0123456789abcdef0123456789abcdef",
		AllowedOrigin:         "*",
		Timezone:              "America/New_York",
		SettlementUpdateMode:  "corrective",
		AccessTokenTTLMinutes: 5,
	}

	handler, closers, err := buildApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Empty(t, closers)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildAppRejectsBadSettings(t *testing.T) {
	logger, _ := test.NewNullLogger()
	base := config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", Timezone: "UTC"}

	badMode := base
	badMode.SettlementUpdateMode = "sideways"
	_, _, err := buildApp(context.Background(), badMode, logger)
	assert.Error(t, err)

	badZone := base
	badZone.Timezone = "Mars/Olympus_Mons"
	_, _, err = buildApp(context.Background(), badZone, logger)
	assert.Error(t, err)
}
