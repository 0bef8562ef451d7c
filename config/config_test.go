package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ValidateClient())
	require.NoError(t, cfg.ValidateRelay())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drawchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  server_url: wss://chat.example.org/ws
  room_id: design
  reconnect_delay: 250ms
relay:
  server_urls: ["wss://portal.gosuda.org/relay"]
logging:
  level: debug
`), 0o600))

	t.Setenv("DRAWCHAT_ROOM_ID", "ops")
	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.org/ws", cfg.Client.ServerURL)
	assert.Equal(t, "ops", cfg.Client.RoomID, "env wins over file")
	assert.Equal(t, 250*time.Millisecond, cfg.Client.ReconnectDelay.Duration())
	assert.Equal(t, []string{"wss://portal.gosuda.org/relay"}, cfg.Relay.ServerURLs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8093, cfg.Relay.Port, "defaults kept")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DRAWCHAT_NAME=dotenv-user\n"), 0o600))
	t.Setenv("DRAWCHAT_NAME", "")
	require.NoError(t, os.Unsetenv("DRAWCHAT_NAME"))

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-user", cfg.Client.Name)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"DRAWCHAT_RELAY_URLS":      " wss://a/relay, ,wss://b/relay ",
		"DRAWCHAT_PORT":            "9000",
		"DRAWCHAT_LOG_PRETTY":      "true",
		"DRAWCHAT_RECONNECT_DELAY": "2",
		"DRAWCHAT_RELAY_DATA_PATH": "/var/lib/drawchat",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"wss://a/relay", "wss://b/relay"}, cfg.Relay.ServerURLs)
	assert.Equal(t, 9000, cfg.Relay.Port)
	assert.Equal(t, "/var/lib/drawchat", cfg.Relay.DataPath)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, 2*time.Second, cfg.Client.ReconnectDelay.Duration())

	assert.ErrorIs(t, Default().ApplyEnv(env(map[string]string{"DRAWCHAT_PORT": "x"})), ErrInvalid)
	assert.ErrorIs(t, Default().ApplyEnv(env(map[string]string{"DRAWCHAT_LOG_PRETTY": "maybe"})), ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"http scheme":   func(c *Config) { c.Client.ServerURL = "http://x/ws" },
		"no room":       func(c *Config) { c.Client.RoomID = " " },
		"zero canvas":   func(c *Config) { c.Client.CanvasWidth = 0 },
		"bad log level": func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.ErrorIs(t, cfg.ValidateClient(), ErrInvalid, name)
	}

	cfg := Default()
	cfg.Relay.MetricsPath = "metrics"
	assert.ErrorIs(t, cfg.ValidateRelay(), ErrInvalid)
}

func TestSetupLogging(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	}()
	var buf bytes.Buffer

	require.NoError(t, SetupLogging(Logging{Level: "warn"}, &buf))
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Error(t, SetupLogging(Logging{Level: "loud"}, &buf))
}
