package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultCertificateValidity, cfg.CertificateValidityDays)
	assert.Equal(t, DefaultExpiryWarningDays, cfg.ExpiryWarningDays)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("EXPIRY_WARNING_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 30, cfg.ExpiryWarningDays)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := &Config{CertificateValidityDays: 0, ExpiryWarningDays: 10}
	assert.Error(t, cfg.Validate())

	cfg = &Config{CertificateValidityDays: 365, ExpiryWarningDays: 365}
	assert.Error(t, cfg.Validate())

	cfg = &Config{CertificateValidityDays: 365, ExpiryWarningDays: 10}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("EXPIRY_WARNING_DAYS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultExpiryWarningDays, cfg.ExpiryWarningDays)
}
