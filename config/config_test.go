package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "/login/oauth", cfg.MountPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.CodeTTLMin)
	assert.Equal(t, 60, cfg.AccessTokenTTLMin)
	assert.Equal(t, 5, cfg.CollaboratorTimeoutSec)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ISSUER", "https://sso.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "https://sso.example.com", cfg.Issuer)
	assert.Equal(t, "debug", cfg.LogLevel)
}
