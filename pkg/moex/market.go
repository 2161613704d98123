// Package moex provides typed access to Moscow Exchange market data: the
// static market catalog, market-wide and per-instrument accessors, and the
// AlgoPack super-candle datasets.
package moex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"algopack-api/pkg/iss"
)

const (
	dateLayout = "2006-01-02"

	// Page sizes applied when the caller does not set a limit. The market
	// level datasets page larger than per-instrument ones.
	marketStatsLimit = 50000
	tickerStatsLimit = 10000
	candlesLimit     = 10000
	maxPageLimit     = 50000

	// backfillStep is how far the trade tape cursor is rewound per request
	// when assembling the candle window.
	backfillStep = 3000
)

// StatsQuery scopes a market-wide dataset request to one trading date.
// A zero Date means today. Latest narrows the response to the most recent
// interval of the date. A zero Limit applies the dataset default.
type StatsQuery struct {
	Date   time.Time
	Latest bool
	Offset int
	Limit  int
}

// Market is the data facade for one catalog market on its default or an
// explicitly chosen board.
type Market struct {
	client *iss.Client
	spec   MarketSpec
	board  string
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithMarketBoard overrides the market's default board.
func WithMarketBoard(board string) MarketOption {
	return func(m *Market) {
		if b := strings.ToUpper(strings.TrimSpace(board)); b != "" {
			m.board = b
		}
	}
}

// NewMarket resolves a market name or alias against the catalog.
func NewMarket(client *iss.Client, name string, opts ...MarketOption) (*Market, error) {
	spec, ok := LookupMarket(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, name)
	}
	m := &Market{client: client, spec: spec, board: spec.Board}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Market) Name() string     { return m.spec.Name }
func (m *Market) Engine() string   { return m.spec.Engine }
func (m *Market) Board() string    { return m.board }
func (m *Market) Spec() MarketSpec { return m.spec }

// Tickers lists the market's instruments. Without explicit fields the
// market's default column set is applied; pass "*" to keep every column.
func (m *Market) Tickers(ctx context.Context, fields ...string) ([]iss.Record, error) {
	table, err := m.client.Table(ctx, m.spec.securitiesPath(), "securities", nil)
	if err != nil {
		return nil, err
	}
	return normalizeRecords(table.Records(), selectFields(fields, m.spec.TickerFields)), nil
}

// MarketData returns the current trading snapshot for every instrument.
func (m *Market) MarketData(ctx context.Context, fields ...string) ([]iss.Record, error) {
	table, err := m.client.Table(ctx, m.spec.securitiesPath(), "marketdata", nil)
	if err != nil {
		return nil, err
	}
	return normalizeRecords(table.Records(), selectFields(fields, m.spec.MarketDataFields)), nil
}

// Trades reads the market-wide trade tape in tape order. A zero cursor
// returns the most recent prints, otherwise prints following the given
// tape number.
func (m *Market) Trades(ctx context.Context, after int64) ([]Trade, error) {
	query := url.Values{}
	if after > 0 {
		query.Set(m.spec.TradeCursor, strconv.FormatInt(after, 10))
	} else {
		query.Set("reversed", "1")
	}
	table, err := m.client.Table(ctx, m.spec.boardPath(m.board, "trades"), "trades", query)
	if err != nil {
		return nil, err
	}
	trades, err := DecodeTrades(table)
	if err != nil {
		return nil, err
	}
	if after <= 0 {
		reverseTrades(trades)
	}
	return trades, nil
}

// Candles builds one-minute candles per instrument from the latest prints
// of the trade tape. The window covers the last closed minute plus the
// minute still in progress, rewinding the tape cursor until both are
// covered.
func (m *Market) Candles(ctx context.Context) ([]MarketCandle, error) {
	trades, err := m.Trades(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}

	// The tape reports intraday times only; anchor them on the feed's own
	// clock rather than ours.
	day := trades[len(trades)-1].SysTime
	combine := func(tod time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(),
			tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC)
	}
	for i := range trades {
		trades[i].Time = combine(trades[i].Time)
	}

	finish := trades[len(trades)-1].Time
	windowEnd := finish.Truncate(time.Minute)
	begin := windowEnd.Add(-time.Minute)
	end := windowEnd.Add(time.Minute)

	for trades[0].Time.After(begin) {
		first := trades[0]
		cursor := first.TradeNo - backfillStep
		if cursor < 1 {
			cursor = 1
		}
		prev, err := m.Trades(ctx, cursor)
		if err != nil {
			return nil, err
		}
		head := make([]Trade, 0, len(prev))
		for _, tr := range prev {
			if tr.TradeNo >= first.TradeNo {
				continue
			}
			tr.Time = combine(tr.Time)
			head = append(head, tr)
		}
		if len(head) == 0 {
			break
		}
		trades = append(head, trades...)
	}

	window := make([]Trade, 0, len(trades))
	for _, tr := range trades {
		if !tr.Time.Before(begin) && tr.Time.Before(end) {
			window = append(window, tr)
		}
	}
	return candlesFromTrades(window, begin, time.Minute, finish), nil
}

// TradeStats reads the market-wide trade super-candles for one date.
func (m *Market) TradeStats(ctx context.Context, q StatsQuery) ([]TradeStat, error) {
	table, err := m.algoPackTable(ctx, MetricTradeStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeTradeStats(table)
}

// OrderStats reads the market-wide order-flow super-candles for one date.
func (m *Market) OrderStats(ctx context.Context, q StatsQuery) ([]OrderStat, error) {
	table, err := m.algoPackTable(ctx, MetricOrderStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeOrderStats(table)
}

// ObStats reads the market-wide order-book super-candles for one date.
func (m *Market) ObStats(ctx context.Context, q StatsQuery) ([]ObStat, error) {
	table, err := m.algoPackTable(ctx, MetricObStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeObStats(table)
}

// HI2 reads the market-wide Herfindahl concentration index rows.
func (m *Market) HI2(ctx context.Context, q StatsQuery) ([]iss.Record, error) {
	table, err := m.algoPackTable(ctx, MetricHI2, q)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

// Alerts reads the market-wide anomaly alert rows.
func (m *Market) Alerts(ctx context.Context, q StatsQuery) ([]iss.Record, error) {
	table, err := m.algoPackTable(ctx, MetricAlerts, q)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

// FutOI reads the market-wide futures open interest rows.
func (m *Market) FutOI(ctx context.Context, q StatsQuery) ([]iss.Record, error) {
	if !m.spec.SupportsMetric(MetricFutOI) {
		return nil, &UnsupportedMetricError{Market: m.spec.Name, Metric: MetricFutOI}
	}
	table, err := m.client.FetchTable(ctx, futoiPath(""), "futoi",
		statsQueryValues(q), q.Offset, statsLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

func (m *Market) algoPackTable(ctx context.Context, metric string, q StatsQuery) (*iss.Table, error) {
	if !m.spec.SupportsMetric(metric) {
		return nil, &UnsupportedMetricError{Market: m.spec.Name, Metric: metric}
	}
	return m.client.FetchTable(ctx, m.spec.algoPackPath(metric, ""), "data",
		statsQueryValues(q), q.Offset, statsLimit(q.Limit))
}

func statsQueryValues(q StatsQuery) url.Values {
	date := q.Date
	if date.IsZero() {
		date = time.Now()
	}
	query := url.Values{}
	query.Set("date", date.Format(dateLayout))
	if q.Latest {
		query.Set("latest", "1")
	}
	return query
}

func statsLimit(limit int) int {
	_, limit = pageWindow(0, limit, marketStatsLimit)
	return limit
}

func pageWindow(offset, limit, fallback int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 || limit > maxPageLimit {
		limit = fallback
	}
	return offset, limit
}

// selectFields picks the effective projection: explicit fields win, "*"
// disables narrowing, otherwise the market default applies.
func selectFields(fields, defaults []string) []string {
	if len(fields) == 1 && fields[0] == "*" {
		return nil
	}
	if len(fields) > 0 {
		return fields
	}
	return defaults
}

// normalizeRecords renames the identifier columns to ticker and board and
// optionally narrows each record to a field subset. The identifiers survive
// any narrowing.
func normalizeRecords(records []iss.Record, fields []string) []iss.Record {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[strings.ToLower(f)] = true
	}
	out := make([]iss.Record, 0, len(records))
	for _, rec := range records {
		norm := make(iss.Record, len(rec))
		for key, val := range rec {
			switch key {
			case "secid":
				key = "ticker"
			case "boardid":
				key = "board"
			default:
				if len(fields) > 0 && !keep[key] {
					continue
				}
			}
			norm[key] = val
		}
		out = append(out, norm)
	}
	return out
}

func resolveRange(from, till time.Time) (time.Time, time.Time, error) {
	if from.IsZero() {
		from = time.Now()
	}
	if till.IsZero() {
		till = from
	}
	f, t := dateOnly(from), dateOnly(till)
	if t.Before(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s till %s",
			ErrInvalidDateRange, f.Format(dateLayout), t.Format(dateLayout))
	}
	return f, t, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func reverseTrades(trades []Trade) {
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
}
