package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.TTL = CacheTTL{Short: 30, Medium: 300, Long: 3600}
	cfg.Ingest.IntervalSeconds = 300
	return cfg
}

func TestValidateEnv(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dev", cfg.Env)

	cfg = validConfig()
	cfg.Env = "PROD"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "prod", cfg.Env)

	cfg = validConfig()
	cfg.Env = "staging"
	assert.Error(t, cfg.Validate())
}

func TestValidateTTLBounds(t *testing.T) {
	cfg := validConfig()
	cfg.TTL.Short = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.TTL.Long = -1
	assert.Error(t, cfg.Validate())
}

func TestValidatePostgresNeedsRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://localhost:5432/algopack"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")

	cfg.Redis.Host = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestValidateJobs(t *testing.T) {
	t.Run("defaults fill in", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "EQ", Tickers: []string{"sber", "GAZP "}}}
		require.NoError(t, cfg.Validate())

		job := cfg.Ingest.Jobs[0]
		assert.Equal(t, "shares", job.Market, "alias resolves to catalog name")
		assert.Equal(t, []string{"SBER", "GAZP"}, job.Tickers)
		assert.Equal(t, []string{MetricCandles, MetricTradeStats}, job.Metrics)
		assert.Equal(t, "1min", job.CandlePeriod)
	})

	t.Run("market without tradestats defaults to candles only", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "index", Tickers: []string{"IMOEX"}}}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, []string{MetricCandles}, cfg.Ingest.Jobs[0].Metrics)
	})

	t.Run("unknown market rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "metals", Tickers: []string{"AU"}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("metric the loop cannot mirror rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "shares", Tickers: []string{"SBER"}, Metrics: []string{"orderbook"}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("metric the market does not serve rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "index", Tickers: []string{"IMOEX"}, Metrics: []string{"tradestats"}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("candles without tickers rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "shares", Metrics: []string{"candles"}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("market-wide tradestats without tickers allowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "shares", Metrics: []string{"tradestats"}}}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad candle period rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.Jobs = []JobConf{{Market: "shares", Tickers: []string{"SBER"}, CandlePeriod: "7min"}}
		assert.Error(t, cfg.Validate())
	})
}

// clearISSEnv keeps credentials in the developer's environment from
// leaking into config assertions.
func clearISSEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"APIKEY", "MOEX_USERNAME", "MOEX_PASSWORD", "ISS_BASE_URL", "ISS_AUTH_URL", "ISS_TIMEOUT", "ISS_MAX_RETRIES"} {
		t.Setenv(key, "")
	}
}

func TestLoadWithISSSection(t *testing.T) {
	clearISSEnv(t)
	dir := t.TempDir()

	issYAML := []byte(`
base_url: ${INGEST_TEST_ISS_URL}
timeout: 5s
max_retries: 2
throttle: 50ms
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iss.yaml"), issYAML, 0o600))

	mainYAML := []byte(`
Env: test
TTL:
  Short: 10
  Medium: 60
  Long: 600
ISS:
  File: iss.yaml
Ingest:
  IntervalSeconds: 60
  Jobs:
    - Market: shares
      Tickers: [SBER]
`)
	mainPath := filepath.Join(dir, "ingest.yaml")
	require.NoError(t, os.WriteFile(mainPath, mainYAML, 0o600))

	t.Setenv("INGEST_TEST_ISS_URL", "https://iss.example.test/iss")

	cfg, err := Load(mainPath)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, mainPath, cfg.MainPath())
	assert.Equal(t, dir, cfg.BaseDir())
	assert.Equal(t, 10, cfg.TTL.Short)

	require.NotNil(t, cfg.ISS.Value)
	assert.Equal(t, "https://iss.example.test/iss", cfg.ISS.Value.BaseURL)
	assert.Equal(t, 2, cfg.ISS.Value.MaxRetries)

	issCfg, err := cfg.ISSConfig()
	require.NoError(t, err)
	assert.Same(t, cfg.ISS.Value, issCfg)
}

func TestISSConfigFallsBackToEnv(t *testing.T) {
	clearISSEnv(t)
	t.Setenv("APIKEY", "env-token")
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	issCfg, err := cfg.ISSConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-token", issCfg.Token)
	assert.True(t, issCfg.HasCredentials())
}

func TestIngestConfDurations(t *testing.T) {
	ingest := IngestConf{IntervalSeconds: 90, BackfillDays: 2}
	assert.Equal(t, "1m30s", ingest.Interval().String())
	assert.Equal(t, "48h0m0s", ingest.Backfill().String())
}
