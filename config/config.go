// Package config loads client and relay settings from a YAML file, a .env
// file and DRAWCHAT_* environment variables, in that order of precedence
// (later wins). Command-line flags are applied on top by the commands.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DRAWCHAT_"

var ErrInvalid = errors.New("invalid config")

// Duration parses "250ms"-style strings or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

type Client struct {
	ServerURL      string   `yaml:"server_url"`
	RoomID         string   `yaml:"room_id"`
	Name           string   `yaml:"name"`
	DataPath       string   `yaml:"data_path"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
	CanvasWidth    int      `yaml:"canvas_width"`
	CanvasHeight   int      `yaml:"canvas_height"`
}

type Relay struct {
	Name        string   `yaml:"name"`
	ServerURLs  []string `yaml:"server_urls"`
	Port        int      `yaml:"port"`
	MetricsPath string   `yaml:"metrics_path"`
	HistoryKeep int      `yaml:"history_keep"`
	// DataPath holds the relay's persisted history; empty keeps it in memory.
	DataPath string `yaml:"data_path"`
	// CredKey is a base64 private key for a stable portal identity.
	CredKey string `yaml:"cred_key"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Client  Client  `yaml:"client"`
	Relay   Relay   `yaml:"relay"`
	Logging Logging `yaml:"logging"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Client: Client{
			ServerURL:      "ws://127.0.0.1:8093/ws",
			RoomID:         "lobby",
			ReconnectDelay: Duration(time.Second),
			CanvasWidth:    800,
			CanvasHeight:   600,
		},
		Relay: Relay{
			Name:        "drawchat",
			Port:        8093,
			MetricsPath: "/metrics",
			HistoryKeep: 5000,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads path (optional), then envFile (optional, missing is fine),
// then the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DRAWCHAT_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v)
			}
			*dst = n
		}
		return nil
	}

	str("SERVER_URL", &c.Client.ServerURL)
	str("ROOM_ID", &c.Client.RoomID)
	str("NAME", &c.Client.Name)
	str("DATA_PATH", &c.Client.DataPath)
	str("RELAY_NAME", &c.Relay.Name)
	str("METRICS_PATH", &c.Relay.MetricsPath)
	str("RELAY_DATA_PATH", &c.Relay.DataPath)
	str("RELAY_CRED_KEY", &c.Relay.CredKey)
	str("LOG_LEVEL", &c.Logging.Level)
	if v, ok := lookup(EnvPrefix + "RECONNECT_DELAY"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		c.Client.ReconnectDelay = d
	}
	if v, ok := lookup(EnvPrefix + "RELAY_URLS"); ok {
		c.Relay.ServerURLs = SplitList(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sLOG_PRETTY=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Logging.Pretty = b
	}
	for name, dst := range map[string]*int{
		"PORT":          &c.Relay.Port,
		"HISTORY_KEEP":  &c.Relay.HistoryKeep,
		"CANVAS_WIDTH":  &c.Client.CanvasWidth,
		"CANVAS_HEIGHT": &c.Client.CanvasHeight,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ValidateClient checks the settings the terminal client needs.
func (c *Config) ValidateClient() error {
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: server_url must be a ws:// or wss:// URL, got %q", ErrInvalid, c.Client.ServerURL)
	}
	if strings.TrimSpace(c.Client.RoomID) == "" {
		return fmt.Errorf("%w: room_id is required", ErrInvalid)
	}
	if c.Client.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnect_delay must not be negative", ErrInvalid)
	}
	if c.Client.CanvasWidth <= 0 || c.Client.CanvasHeight <= 0 {
		return fmt.Errorf("%w: canvas size must be positive", ErrInvalid)
	}
	return c.validateLogging()
}

// ValidateRelay checks the settings the relay needs.
func (c *Config) ValidateRelay() error {
	if c.Relay.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Relay.Port)
	}
	if c.Relay.Name == "" {
		return fmt.Errorf("%w: relay name is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.Relay.MetricsPath, "/") {
		return fmt.Errorf("%w: metrics_path must start with /", ErrInvalid)
	}
	if c.Relay.HistoryKeep <= 0 {
		return fmt.Errorf("%w: history_keep must be positive", ErrInvalid)
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
