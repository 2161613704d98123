//go:build integration
// +build integration

package repo_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "algopack-api/internal/config"
	"algopack-api/internal/svc"
	"algopack-api/pkg/confkit"
	"algopack-api/pkg/moex"
)

func newIntegrationServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	path := confkit.MustProjectPath(appconfig.DefaultConfigPath)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("daemon config not found at %s", path)
	}
	cfg, err := appconfig.Load(path)
	require.NoError(t, err, "load daemon config")
	svcCtx, err := svc.NewServiceContext(cfg)
	require.NoError(t, err, "build service context")
	return svcCtx
}

func TestPostgresConnectivity(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	db := requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var one int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	assert.NoError(t, err, "postgres connectivity check failed")
	assert.Equal(t, 1, one, "postgres returned unexpected value")
}

func TestRedisConnectivity(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	if svcCtx.Redis == nil {
		t.Skip("Redis not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := fmt.Sprintf("algopack:integration:%d", time.Now().UnixNano())
	const payload = "ok"

	err := svcCtx.Store.Set(ctx, key, payload, 10*time.Second)
	assert.NoError(t, err, "cache set failed")
	defer svcCtx.Store.Delete(context.Background(), key)

	var value string
	found, err := svcCtx.Store.Get(ctx, key, &value)
	assert.NoError(t, err, "cache get failed")
	assert.True(t, found, "cache entry missing")
	assert.Equal(t, payload, value, "cache value mismatch")
}

func TestCandleMirrorRoundTrip(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	if !svcCtx.HasStorage() {
		t.Skip("Postgres not configured (storage nil)")
	}
	db := requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const market = "shares"
	secid := fmt.Sprintf("ZZITEST%d", time.Now().UnixNano()%1_000_000)
	defer func() {
		_, err := db.ExecContext(context.Background(),
			"DELETE FROM candles WHERE market = $1 AND secid = $2", market, secid)
		assert.NoError(t, err, "cleanup failed")
	}()

	begin := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	batch := []moex.Candle{
		{
			Open:   decimal.RequireFromString("321.5"),
			Close:  decimal.RequireFromString("321.9"),
			High:   decimal.RequireFromString("322.1"),
			Low:    decimal.RequireFromString("321.2"),
			Value:  decimal.RequireFromString("1498265.4"),
			Volume: 4660,
			Begin:  begin,
			End:    begin.Add(time.Minute),
		},
		{
			Open:   decimal.RequireFromString("321.9"),
			Close:  decimal.RequireFromString("322.4"),
			High:   decimal.RequireFromString("322.4"),
			Low:    decimal.RequireFromString("321.8"),
			Value:  decimal.RequireFromString("982110.0"),
			Volume: 3051,
			Begin:  begin.Add(time.Minute),
			End:    begin.Add(2 * time.Minute),
		},
	}

	written, err := svcCtx.Repos.Candles.SaveBatch(ctx, market, "TQBR", secid, "1min", batch)
	require.NoError(t, err, "save batch")
	assert.Equal(t, len(batch), written, "rows written")

	got, err := svcCtx.Repos.Candles.Range(ctx, market, secid, "1min", begin, begin.Add(5*time.Minute))
	require.NoError(t, err, "range read")
	require.Len(t, got, len(batch), "range row count")
	assert.True(t, got[0].Open.Equal(batch[0].Open), "open survives the round trip")
	assert.Equal(t, batch[0].Volume, got[0].Volume, "volume survives the round trip")
	assert.True(t, got[0].Begin.Equal(batch[0].Begin), "begin survives the round trip")

	latest, err := svcCtx.Repos.Candles.LatestBegin(ctx, market, secid, "1min")
	require.NoError(t, err, "latest begin")
	assert.True(t, latest.Equal(batch[1].Begin), "latest begin matches the newest row")
}

func requirePostgres(t *testing.T, svcCtx *svc.ServiceContext) *sql.DB {
	t.Helper()
	if svcCtx.DBConn == nil {
		t.Skip("Postgres not configured (DBConn nil)")
	}
	raw, err := svcCtx.DBConn.RawDB()
	if err != nil {
		t.Fatalf("failed to obtain postgres handle: %v", err)
	}
	return raw
}
