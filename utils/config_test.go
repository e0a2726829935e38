package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.MongoURI)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, "inr", cfg.Currency)
}

func TestConfigFromEnv(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(map[string]string{
		"PORT":           "8080",
		"NODE_ENV":       "staging",
		"JWT_SECRET":     "s3cret",
		"JWT_EXPIRES_IN": "12h",
		"CORS_ORIGINS":   "https://shop.example, https://admin.example ,",
		"TRUST_PROXY":    "true",
		"CURRENCY":       "USD",
		"COMPANY_NAME":   "Acme",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 12*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "Acme", cfg.Company.Name)
}

func TestConfigRequiresSecretInProduction(t *testing.T) {
	_, err := ConfigFromEnv(envMap(map[string]string{"APP_ENV": "production"}))
	assert.Error(t, err)
}

func TestConfigRejectsBadNumbers(t *testing.T) {
	_, err := ConfigFromEnv(envMap(map[string]string{"RATE_LIMIT_MAX": "lots"}))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
