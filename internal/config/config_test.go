package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://studio@localhost/studio")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 7, cfg.ExpiryReminderDays)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Empty(t, cfg.Devices)
}

func TestLoadReportsEveryMissingKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()

	require.Error(t, err)
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadRejectsShortSecretInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "short")

	t.Setenv("ENV", "development")
	_, err := Load()
	assert.NoError(t, err)

	t.Setenv("ENV", "production")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroWorkers(t *testing.T) {
	setRequired(t)
	t.Setenv("WORKER_COUNT", "0")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoadStudioDevices(t *testing.T) {
	setRequired(t)
	t.Setenv("STUDIO_DEVICES", "Vacu 1, Vacu 2 ,Roll 1,,")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"Vacu 1", "Vacu 2", "Roll 1"}, cfg.Devices)
}

func TestLoadDatabaseOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadDatabaseOnly()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://studio@localhost/studio")
	t.Setenv("REDIS_URL", "")
	cfg, err := LoadDatabaseOnly()
	require.NoError(t, err)
	assert.Equal(t, "postgres://studio@localhost/studio", cfg.DatabaseURL)
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{"parses integer", "42", 42},
		{"uses default for empty", "", 10},
		{"uses default for non-numeric", "abc", 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STUDIO_TEST_INT", tc.envValue)
			if got := getEnvAsIntOrDefault("STUDIO_TEST_INT", 10); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestGetEnvAsListOrDefault(t *testing.T) {
	t.Setenv("STUDIO_TEST_LIST", " , ")
	assert.Equal(t, []string{"fallback"}, getEnvAsListOrDefault("STUDIO_TEST_LIST", []string{"fallback"}))
}
