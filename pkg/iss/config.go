package iss

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envToken      = "APIKEY"
	envUsername   = "MOEX_USERNAME"
	envPassword   = "MOEX_PASSWORD"
	envBaseURL    = "ISS_BASE_URL"
	envAuthURL    = "ISS_AUTH_URL"
	envTimeout    = "ISS_TIMEOUT"
	envMaxRetries = "ISS_MAX_RETRIES"
)

// Config holds runtime settings for the ISS client. Credentials are
// optional: with none set the client runs anonymously and paces its
// requests.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	AuthURL    string        `yaml:"auth_url"`
	Token      string        `yaml:"token"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"-"`
	MaxRetries int           `yaml:"max_retries"`
	Throttle   time.Duration `yaml:"-"`

	timeoutRaw  string
	throttleRaw string
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open iss config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var raw struct {
		BaseURL    string `yaml:"base_url"`
		AuthURL    string `yaml:"auth_url"`
		Token      string `yaml:"token"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		Timeout    string `yaml:"timeout"`
		MaxRetries int    `yaml:"max_retries"`
		Throttle   string `yaml:"throttle"`
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read iss config: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal iss config: %w", err)
	}

	cfg := &Config{
		BaseURL:     raw.BaseURL,
		AuthURL:     raw.AuthURL,
		Token:       raw.Token,
		Username:    raw.Username,
		Password:    raw.Password,
		MaxRetries:  raw.MaxRetries,
		timeoutRaw:  raw.Timeout,
		throttleRaw: raw.Throttle,
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFromEnv builds a Config from environment variables alone.
func ConfigFromEnv() (*Config, error) {
	return LoadConfigFromReader(strings.NewReader(""))
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("iss config: timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("iss config: max_retries cannot be negative")
	}
	if c.Throttle < 0 {
		return errors.New("iss config: throttle cannot be negative")
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.New("iss config: username and password must be set together")
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// HasCredentials reports whether the config carries a token or a
// username/password pair.
func (c *Config) HasCredentials() bool {
	return c.Token != "" || (c.Username != "" && c.Password != "")
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) applyEnvOverrides() {
	c.BaseURL = expandAndOverride(c.BaseURL, envBaseURL)
	c.AuthURL = expandAndOverride(c.AuthURL, envAuthURL)
	c.Token = expandAndOverride(c.Token, envToken)
	c.Username = expandAndOverride(c.Username, envUsername)
	c.Password = expandAndOverride(c.Password, envPassword)

	if raw := os.Getenv(envTimeout); raw != "" {
		c.timeoutRaw = raw
	} else {
		c.timeoutRaw = os.ExpandEnv(c.timeoutRaw)
	}

	if raw := os.Getenv(envMaxRetries); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			c.MaxRetries = v
		}
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.Timeout, err = parseDuration("timeout", c.timeoutRaw, defaultHTTPTimeout); err != nil {
		return err
	}
	if c.Throttle, err = parseDuration("throttle", c.throttleRaw, defaultThrottleInterval); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("iss config: invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

// options translates the config into client options.
func (c *Config) options() []Option {
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: c.Timeout}),
		WithMaxRetries(c.MaxRetries),
		WithThrottleInterval(c.Throttle),
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	if c.AuthURL != "" {
		opts = append(opts, WithAuthURL(c.AuthURL))
	}
	if c.Token != "" {
		opts = append(opts, WithToken(c.Token))
	}
	return opts
}

func expandAndOverride(current, envKey string) string {
	current = os.ExpandEnv(current)
	if envVal := os.Getenv(envKey); envVal != "" {
		return envVal
	}
	return current
}
