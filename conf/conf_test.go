package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfigDefaults(t *testing.T) {
	t.Setenv("LIVE_BASE_URL", "")
	cfg := LoadClientConfig()
	assert.Equal(t, DefaultLiveBaseURL, cfg.BaseURL)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.TypingTTL)
}

func TestLoadClientConfigFromEnv(t *testing.T) {
	t.Setenv("LIVE_BASE_URL", "https://live.example.com/")
	t.Setenv("LIVE_RECONNECT_ATTEMPTS", "3")
	t.Setenv("LIVE_POLL_INTERVAL", "10s")

	cfg := LoadClientConfig()
	assert.Equal(t, "https://live.example.com", cfg.BaseURL)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}

func TestInitConfigReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\nrds:\n  driver: sqlite\n"), 0o600))
	t.Setenv("AUTH_JWT_SECRET", "from-env")

	InitConfig(path)

	assert.Equal(t, "9090", Port)
	assert.Equal(t, "sqlite", RdsDriver)
	assert.Equal(t, "from-env", AuthJwtSecret)
	assert.Equal(t, "live:domain_events", RedisDomainChannel)
	assert.Equal(t, 4, PushCenterWorkers)
}

func TestGetYaml(t *testing.T) {
	defer func(prev EnvironmentEnum) { SystemEnvironmentEnum = prev }(SystemEnvironmentEnum)

	SystemEnvironmentEnum = MainnetEnvironmentEnum
	assert.Equal(t, "conf/conf_pro.yaml", GetYaml())
	SystemEnvironmentEnum = TestnetEnvironmentEnum
	assert.Equal(t, "conf/conf_test.yaml", GetYaml())
	SystemEnvironmentEnum = ExampleEnvironmentEnum
	assert.Equal(t, "conf/conf_example.yaml", GetYaml())
}
