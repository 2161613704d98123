package cache

import (
	"strings"
	"time"

	"algopack-api/internal/config"
)

// Namespace is the Redis key prefix for the AlgoPack mirror.
const Namespace = "algopack"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 30*time.Second),
		Medium: durationOrDefault(cfg.Medium, 5*time.Minute),
		Long:   durationOrDefault(cfg.Long, time.Hour),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// keyTime renders a timestamp as a colon-free, sortable key segment.
func keyTime(t time.Time) string {
	return t.UTC().Format("20060102T150405")
}

// --- Candle Keys ------------------------------------------------------------

// CandleRangeKey addresses a cached candle window for one instrument.
func CandleRangeKey(market, ticker, period string, from, till time.Time) string {
	return formatKey("candles", market, ticker, period, keyTime(from), keyTime(till))
}

// CandlePattern matches every cached candle window for one instrument,
// across periods and ranges. Used for post-write invalidation.
func CandlePattern(market, ticker string) string {
	return formatKey("candles", market, ticker) + ":*"
}

// --- TradeStats Keys --------------------------------------------------------

// TradeStatsRangeKey addresses a cached super-candle window. Ticker may be
// empty for market-wide pages.
func TradeStatsRangeKey(market, ticker string, from, till time.Time) string {
	return formatKey("tradestats", market, ticker, keyTime(from), keyTime(till))
}

// TradeStatsPattern matches every cached super-candle window for one market
// or, with a ticker, one instrument.
func TradeStatsPattern(market, ticker string) string {
	return formatKey("tradestats", market, ticker) + ":*"
}

// --- Ingest Keys ------------------------------------------------------------

// IngestLockKey guards one mirror job against overlapping runs.
func IngestLockKey(market, metric string) string {
	return formatKey("lock", "ingest", market, metric)
}

// --- TTL Helpers ------------------------------------------------------------

// CandleRangeTTL returns the TTL for cached candle windows.
func CandleRangeTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// TradeStatsRangeTTL returns the TTL for cached super-candle windows.
func TradeStatsRangeTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// IngestLockTTL returns the TTL for mirror job locks.
func IngestLockTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLShort, 2) // locks outlive one fetch, not one cycle
}
