package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SCAN_SERVICE_PORT", "UPLOAD_DIR", "REPORTS_DIR", "JWT_EXPIRE_MINUTES", "RATE_LIMIT", "MAX_UPLOAD_MB", "OTP_EXPIRE_MINUTES", "CHATBOT_KB_PATH", "CHAT_SESSION_TTL_MINUTES"} {
		t.Setenv(k, "")
	}
	t.Setenv("JWT_SECRET_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Port:           "8000",
		JWTSecret:      "s3cret",
		JWTExpire:      time.Hour,
		RateLimit:      100,
		UploadDir:      "uploads/patient_scans",
		ReportsDir:     "reports/temp",
		MaxUploadBytes: 10 << 20,
		OTPExpire:      10 * time.Minute,
		ChatSessionTTL: time.Hour,
	}, cfg)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("SCAN_SERVICE_PORT", "9100")
	t.Setenv("JWT_EXPIRE_MINUTES", "15")
	t.Setenv("RATE_LIMIT", "20")
	t.Setenv("MAX_UPLOAD_MB", "2")
	t.Setenv("OTP_EXPIRE_MINUTES", "5")
	t.Setenv("UPLOAD_DIR", "/data/scans")
	t.Setenv("CHATBOT_KB_PATH", "/etc/csss/kb.yaml")
	t.Setenv("CHAT_SESSION_TTL_MINUTES", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWTExpire)
	assert.Equal(t, 20, cfg.RateLimit)
	assert.Equal(t, int64(2<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.OTPExpire)
	assert.Equal(t, "/data/scans", cfg.UploadDir)
	assert.Equal(t, "/etc/csss/kb.yaml", cfg.ChatKBPath)
	assert.Equal(t, 30*time.Minute, cfg.ChatSessionTTL)

	// garbage falls back
	t.Setenv("RATE_LIMIT", "lots")
	t.Setenv("JWT_EXPIRE_MINUTES", "-3")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimit)
	assert.Equal(t, time.Hour, cfg.JWTExpire)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	_, err := Load()
	assert.EqualError(t, err, "JWT_SECRET_KEY is required")
}
