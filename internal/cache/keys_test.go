package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"algopack-api/internal/config"
)

func TestNewTTLSet(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{Short: 15, Medium: 120, Long: 900})
	assert.Equal(t, 15*time.Second, ttl.Short)
	assert.Equal(t, 2*time.Minute, ttl.Medium)
	assert.Equal(t, 15*time.Minute, ttl.Long)

	def := NewTTLSet(config.CacheTTL{})
	assert.Equal(t, 30*time.Second, def.Short)
	assert.Equal(t, 5*time.Minute, def.Medium)
	assert.Equal(t, time.Hour, def.Long)

	off := NewTTLSet(config.CacheTTL{Short: -1, Medium: 120, Long: 900})
	assert.Zero(t, off.Short, "negative seconds disable the bucket")
}

func TestTTLSetScaled(t *testing.T) {
	ttl := TTLSet{Short: 30 * time.Second, Medium: 5 * time.Minute, Long: time.Hour}

	assert.Equal(t, time.Minute, ttl.Scaled(TTLShort, 2))
	assert.Equal(t, 150*time.Second, ttl.Scaled(TTLMedium, 0.5))
	assert.Equal(t, time.Hour, ttl.Scaled(TTLLong, 0), "non-positive factor keeps the base")
	assert.Zero(t, ttl.Scaled(TTLClass("bogus"), 2))
}

func TestKeyLayout(t *testing.T) {
	from := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	till := from.Add(time.Hour)

	assert.Equal(t,
		"algopack:candles:shares:SBER:1min:20250602T100000:20250602T110000",
		CandleRangeKey("shares", "SBER", "1min", from, till))
	assert.Equal(t, "algopack:candles:shares:SBER:*", CandlePattern("shares", "SBER"))

	assert.Equal(t,
		"algopack:tradestats:shares:SBER:20250602T100000:20250602T110000",
		TradeStatsRangeKey("shares", "SBER", from, till))
	assert.Equal(t,
		"algopack:tradestats:shares:20250602T100000:20250602T110000",
		TradeStatsRangeKey("shares", "", from, till),
		"market-wide keys skip the empty ticker segment")
	assert.Equal(t, "algopack:tradestats:forts:*", TradeStatsPattern("forts", ""))

	assert.Equal(t, "algopack:lock:ingest:forts:candles", IngestLockKey("forts", "candles"))
}

func TestKeyTimeNormalisesZone(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	from := time.Date(2025, 6, 2, 13, 0, 0, 0, msk)
	till := from.Add(time.Hour)

	assert.Equal(t,
		"algopack:candles:shares:SBER:1h:20250602T100000:20250602T110000",
		CandleRangeKey("shares", "SBER", "1h", from, till))
}

func TestTTLHelpers(t *testing.T) {
	ttl := TTLSet{Short: 30 * time.Second, Medium: 5 * time.Minute, Long: time.Hour}

	assert.Equal(t, 5*time.Minute, CandleRangeTTL(ttl))
	assert.Equal(t, 5*time.Minute, TradeStatsRangeTTL(ttl))
	assert.Equal(t, time.Minute, IngestLockTTL(ttl))
}
