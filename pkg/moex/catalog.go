package moex

import (
	"fmt"
	"strings"
)

// Metric names servable through Market and Ticker accessors.
const (
	MetricCandles    = "candles"
	MetricTrades     = "trades"
	MetricOrderBook  = "orderbook"
	MetricTradeStats = "tradestats"
	MetricOrderStats = "orderstats"
	MetricObStats    = "obstats"
	MetricHI2        = "hi2"
	MetricAlerts     = "alerts"
	MetricFutOI      = "futoi"
)

const futoiBasePath = "analyticalproducts/futoi/securities"

// infoDefaultFields is the compact projection applied to instrument
// listing rows when the caller asks for no specific fields.
var infoDefaultFields = []string{
	"title", "is_primary", "decimals", "is_traded",
	"market", "engine", "listed_from", "listed_till", "unit",
}

// MarketSpec is one entry of the static market catalog. Name and Engine are
// the path segments the trading endpoints are addressed by, AlgoPack is the
// super-candles family segment for markets covered by the dataset.
type MarketSpec struct {
	Name    string
	Engine  string
	Board   string
	Aliases []string

	// AlgoPack is empty for markets without super-candles coverage.
	AlgoPack string
	Metrics  []string

	// TradeCursor is the column the trade tape is paged by.
	TradeCursor string

	TickerFields     []string
	MarketDataFields []string
}

var catalog = []MarketSpec{
	{
		Name:        "selt",
		Engine:      "currency",
		Board:       "CETS",
		Aliases:     []string{"selt", "currency", "fx"},
		AlgoPack:    "fx",
		Metrics:     []string{MetricCandles, MetricTrades, MetricOrderBook, MetricTradeStats, MetricOrderStats, MetricObStats, MetricHI2},
		TradeCursor: "tradeno",
		TickerFields: []string{
			"shortname", "lotsize", "decimals", "minstep", "secname",
		},
		MarketDataFields: []string{
			"bid", "offer", "biddeptht", "offerdeptht", "open", "high", "low",
			"last", "waprice", "lasttoprevprice", "numtrades", "voltoday",
			"valtoday", "valtoday_usd", "updatetime", "systime",
		},
	},
	{
		Name:        "shares",
		Engine:      "stock",
		Board:       "TQBR",
		Aliases:     []string{"shares", "stocks", "equity", "eq"},
		AlgoPack:    "eq",
		Metrics:     []string{MetricCandles, MetricTrades, MetricOrderBook, MetricTradeStats, MetricOrderStats, MetricObStats, MetricHI2, MetricAlerts},
		TradeCursor: "tradeno",
		TickerFields: []string{
			"shortname", "lotsize", "decimals", "minstep", "issuesize",
			"isin", "regnumber", "listlevel",
		},
		MarketDataFields: []string{
			"bid", "offer", "biddeptht", "offerdeptht", "open", "high", "low",
			"last", "waprice", "lasttoprevprice", "numtrades", "voltoday",
			"valtoday", "valtoday_usd", "openperiodprice", "closingauctionprice",
			"closingauctionvolume", "issuecapitalization", "updatetime", "systime",
		},
	},
	{
		Name:        "index",
		Engine:      "stock",
		Board:       "SNDX",
		Aliases:     []string{"index"},
		Metrics:     []string{MetricCandles},
		TradeCursor: "tradeno",
	},
	{
		Name:        "bonds",
		Engine:      "stock",
		Board:       "TQOB",
		Aliases:     []string{"bonds"},
		Metrics:     []string{MetricCandles, MetricTrades, MetricOrderBook},
		TradeCursor: "tradeno",
	},
	{
		Name:        "forts",
		Engine:      "futures",
		Board:       "RFUD",
		Aliases:     []string{"futures", "forts", "fo"},
		AlgoPack:    "fo",
		Metrics:     []string{MetricCandles, MetricTrades, MetricOrderBook, MetricTradeStats, MetricObStats, MetricHI2, MetricFutOI},
		TradeCursor: "recno",
		TickerFields: []string{
			"sectype", "assetcode", "shortname", "lotvolume", "decimals",
			"minstep", "initialmargin", "lasttradedate",
		},
		MarketDataFields: []string{
			"bid", "offer", "biddeptht", "offerdeptht", "open", "high", "low",
			"last", "waprice", "lasttoprevprice", "numtrades", "voltoday",
			"valtoday", "valtoday_usd", "openperiodprice", "closingauctionprice",
			"closingauctionvolume", "issuecapitalization", "updatetime", "systime",
		},
	},
	{
		Name:        "options",
		Engine:      "futures",
		Board:       "ROPD",
		Aliases:     []string{"options"},
		Metrics:     []string{MetricCandles, MetricTrades, MetricOrderBook},
		TradeCursor: "recno",
	},
}

var marketIndex = func() map[string]*MarketSpec {
	index := make(map[string]*MarketSpec)
	for i := range catalog {
		spec := &catalog[i]
		for _, alias := range spec.Aliases {
			index[strings.ToLower(alias)] = spec
		}
	}
	return index
}()

// Markets returns a copy of the catalog.
func Markets() []MarketSpec {
	out := make([]MarketSpec, len(catalog))
	copy(out, catalog)
	return out
}

// LookupMarket resolves a market name or alias, case-insensitively.
func LookupMarket(name string) (MarketSpec, bool) {
	spec, ok := marketIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return MarketSpec{}, false
	}
	return *spec, true
}

// SupportsMetric reports whether the market serves the named metric.
func (s MarketSpec) SupportsMetric(metric string) bool {
	metric = strings.ToLower(metric)
	for _, m := range s.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// MetricPath builds the request path serving the named metric for one
// instrument on the given board. Each metric maps to exactly one endpoint:
// candles, trades and the order book live under the trading engine, the
// statistic families under the AlgoPack datashop, and open interest under
// analytical products.
func (s MarketSpec) MetricPath(board, secid, metric string) (string, error) {
	metric = strings.ToLower(metric)
	if !s.SupportsMetric(metric) {
		return "", &UnsupportedMetricError{Market: s.Name, Metric: metric}
	}
	switch metric {
	case MetricCandles, MetricTrades, MetricOrderBook:
		return s.securityPath(board, secid, metric), nil
	case MetricFutOI:
		return futoiBasePath, nil
	default:
		return s.algoPackPath(metric, secid), nil
	}
}

// securitiesPath addresses the whole market listing.
func (s MarketSpec) securitiesPath() string {
	return fmt.Sprintf("engines/%s/markets/%s/securities", s.Engine, s.Name)
}

// boardPath addresses a board-wide section such as the trade tape.
func (s MarketSpec) boardPath(board, section string) string {
	return fmt.Sprintf("engines/%s/markets/%s/boards/%s/%s", s.Engine, s.Name, board, section)
}

// securityPath addresses one instrument's section on a board.
func (s MarketSpec) securityPath(board, secid, section string) string {
	return fmt.Sprintf("engines/%s/markets/%s/boards/%s/securities/%s/%s",
		s.Engine, s.Name, board, secid, section)
}

// algoPackPath addresses an AlgoPack metric, either market-wide (empty
// secid) or for one instrument.
func (s MarketSpec) algoPackPath(metric, secid string) string {
	if secid == "" {
		return fmt.Sprintf("datashop/algopack/%s/%s", s.AlgoPack, metric)
	}
	return fmt.Sprintf("datashop/algopack/%s/%s/%s", s.AlgoPack, metric, secid)
}

func futoiPath(sectype string) string {
	if sectype == "" {
		return futoiBasePath
	}
	return futoiBasePath + "/" + sectype
}
