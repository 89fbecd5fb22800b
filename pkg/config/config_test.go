package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TOKEN_VERIFY_RATE_LIMIT", "3")
	t.Setenv("MAIL_ENABLED", "true")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 3, cfg.Token.VerifyRateLimit)
	assert.Equal(t, 10*time.Minute, cfg.Token.VerifyRateWindow)
	assert.True(t, cfg.Mail.Enabled)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "learnxy", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=app password=p@ss dbname=learnxy sslmode=disable", cfg.DSN())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
