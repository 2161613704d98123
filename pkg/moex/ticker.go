package moex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"algopack-api/pkg/iss"
)

// RangeQuery scopes a per-instrument dataset request to a date range.
// A zero From means today and a zero Till means From. Latest narrows the
// response to the most recent interval. A zero Limit applies the dataset
// default.
type RangeQuery struct {
	From   time.Time
	Till   time.Time
	Latest bool
	Offset int
	Limit  int
}

// CandleQuery scopes a candle request. Period accepts the spellings listed
// by ParsePeriod; empty means one hour. Latest returns the most recent
// candle only.
type CandleQuery struct {
	From   time.Time
	Till   time.Time
	Period string
	Latest bool
	Offset int
}

// TradeQuery scopes an instrument trade tape request. After resumes the
// tape behind the given tape number. Latest returns the most recent print
// only.
type TradeQuery struct {
	After  int64
	Latest bool
	Offset int
	Limit  int
}

// Ticker is the data facade for one listed instrument. It is resolved
// against the exchange listing once and addresses all further requests by
// the resolved market and board.
type Ticker struct {
	client   *iss.Client
	spec     MarketSpec
	board    string
	secid    string
	decimals int
	delisted bool

	mu      sync.Mutex
	sectype string
}

type tickerOptions struct {
	board string
}

// TickerOption configures instrument resolution.
type TickerOption func(*tickerOptions)

// WithTickerBoard pins resolution to one board instead of the primary one.
func WithTickerBoard(board string) TickerOption {
	return func(o *tickerOptions) {
		o.board = strings.ToUpper(strings.TrimSpace(board))
	}
}

// NewTicker resolves an instrument against the exchange listing. Without a
// board option the primary listing wins. Instruments whose listing has
// ended stay resolvable and are reported by Delisted.
func NewTicker(ctx context.Context, client *iss.Client, name string, opts ...TickerOption) (*Ticker, error) {
	secid := strings.ToUpper(strings.TrimSpace(name))
	if secid == "" {
		return nil, fmt.Errorf("%w: empty name", ErrTickerNotFound)
	}
	var cfg tickerOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	table, err := client.Table(ctx, "securities/"+secid, "boards", nil)
	if err != nil {
		return nil, err
	}
	row := -1
	for r := 0; r < table.Len(); r++ {
		if cfg.board != "" {
			if table.String(r, "boardid") == cfg.board {
				row = r
				break
			}
		} else if table.Int(r, "is_primary") == 1 {
			row = r
			break
		}
	}
	if row < 0 {
		return nil, fmt.Errorf("%w: %q", ErrTickerNotFound, name)
	}

	marketName := table.String(row, "market")
	spec, ok := LookupMarket(marketName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, marketName)
	}
	board := table.String(row, "boardid")
	if board == "" {
		board = spec.Board
	}
	tk := &Ticker{
		client:   client,
		spec:     spec,
		board:    board,
		secid:    secid,
		decimals: int(table.Int(row, "decimals")),
	}
	if till := table.Time(row, "listed_till"); !till.IsZero() && till.Before(dateOnly(time.Now())) {
		tk.delisted = true
	}
	return tk, nil
}

func (t *Ticker) Secid() string    { return t.secid }
func (t *Ticker) Market() string   { return t.spec.Name }
func (t *Ticker) Engine() string   { return t.spec.Engine }
func (t *Ticker) Board() string    { return t.board }
func (t *Ticker) Decimals() int    { return t.decimals }
func (t *Ticker) Delisted() bool   { return t.delisted }
func (t *Ticker) Spec() MarketSpec { return t.spec }

// Info returns the instrument's board listing rows. Without explicit
// fields a compact default set is applied; pass "*" to keep every column.
func (t *Ticker) Info(ctx context.Context, fields ...string) ([]iss.Record, error) {
	table, err := t.client.Table(ctx, "securities/"+t.secid, "boards", nil)
	if err != nil {
		return nil, err
	}
	records := normalizeRecords(table.Records(), selectFields(fields, infoDefaultFields))
	out := make([]iss.Record, 0, len(records))
	for _, rec := range records {
		if ticker, _ := rec["ticker"].(string); ticker == t.secid {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Candles loads OHLCV rows for the query range, resampling locally when
// the period is not served natively.
func (t *Ticker) Candles(ctx context.Context, q CandleQuery) ([]Candle, error) {
	period, err := ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}
	from, till, err := resolveRange(q.From, q.Till)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("from", from.Format(dateLayout))
	query.Set("till", till.Format(dateLayout))
	query.Set("interval", strconv.Itoa(int(period.Interval)))
	offset, limit := pageWindow(q.Offset, 0, candlesLimit)
	if q.Latest {
		query.Set("iss.reverse", "true")
		limit = 1
	}

	table, err := t.client.FetchTable(ctx,
		t.spec.securityPath(t.board, t.secid, MetricCandles), "candles", query, offset, limit)
	if err != nil {
		return nil, err
	}
	rows, err := DecodeCandles(table)
	if err != nil {
		return nil, err
	}
	if q.Latest && len(rows) > 1 {
		rows = rows[:1]
	}
	if period.Resampled() {
		rows = Resample(rows, period.Minutes)
	}
	return rows, nil
}

// Trades reads the instrument's trade tape.
func (t *Ticker) Trades(ctx context.Context, q TradeQuery) ([]Trade, error) {
	if !t.spec.SupportsMetric(MetricTrades) {
		return nil, &UnsupportedMetricError{Market: t.spec.Name, Metric: MetricTrades}
	}
	query := url.Values{}
	if q.After > 0 {
		query.Set(t.spec.TradeCursor, strconv.FormatInt(q.After, 10))
	}
	offset, limit := pageWindow(q.Offset, q.Limit, tickerStatsLimit)
	if q.Latest {
		query.Set("iss.reverse", "true")
		limit = 1
	}

	table, err := t.client.FetchTable(ctx,
		t.spec.securityPath(t.board, t.secid, MetricTrades), "trades", query, offset, limit)
	if err != nil {
		return nil, err
	}
	rows, err := DecodeTrades(table)
	if err != nil {
		return nil, err
	}
	if q.Latest && len(rows) > 1 {
		rows = rows[:1]
	}
	return rows, nil
}

// OrderBook returns the current order book snapshot.
func (t *Ticker) OrderBook(ctx context.Context) ([]OrderBookLevel, error) {
	if !t.spec.SupportsMetric(MetricOrderBook) {
		return nil, &UnsupportedMetricError{Market: t.spec.Name, Metric: MetricOrderBook}
	}
	table, err := t.client.Table(ctx,
		t.spec.securityPath(t.board, t.secid, MetricOrderBook), "orderbook", nil)
	if err != nil {
		return nil, err
	}
	return DecodeOrderBook(table)
}

// TradeStats reads the instrument's trade super-candles.
func (t *Ticker) TradeStats(ctx context.Context, q RangeQuery) ([]TradeStat, error) {
	table, err := t.algoPackTable(ctx, MetricTradeStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeTradeStats(table)
}

// OrderStats reads the instrument's order-flow super-candles.
func (t *Ticker) OrderStats(ctx context.Context, q RangeQuery) ([]OrderStat, error) {
	table, err := t.algoPackTable(ctx, MetricOrderStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeOrderStats(table)
}

// ObStats reads the instrument's order-book super-candles.
func (t *Ticker) ObStats(ctx context.Context, q RangeQuery) ([]ObStat, error) {
	table, err := t.algoPackTable(ctx, MetricObStats, q)
	if err != nil {
		return nil, err
	}
	return DecodeObStats(table)
}

// HI2 reads the instrument's Herfindahl concentration index rows.
func (t *Ticker) HI2(ctx context.Context, q RangeQuery) ([]iss.Record, error) {
	table, err := t.algoPackTable(ctx, MetricHI2, q)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

// Alerts reads the instrument's anomaly alert rows.
func (t *Ticker) Alerts(ctx context.Context, q RangeQuery) ([]iss.Record, error) {
	table, err := t.algoPackTable(ctx, MetricAlerts, q)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

// FutOI reads open interest rows for the instrument's asset code. The code
// is resolved from the market listing on first use.
func (t *Ticker) FutOI(ctx context.Context, q RangeQuery) ([]iss.Record, error) {
	if !t.spec.SupportsMetric(MetricFutOI) {
		return nil, &UnsupportedMetricError{Market: t.spec.Name, Metric: MetricFutOI}
	}
	sectype, err := t.resolveSectype(ctx)
	if err != nil {
		return nil, err
	}
	query, err := rangeQueryValues(q)
	if err != nil {
		return nil, err
	}
	offset, limit := pageWindow(q.Offset, q.Limit, tickerStatsLimit)
	table, err := t.client.FetchTable(ctx, futoiPath(sectype), "futoi", query, offset, limit)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}

func (t *Ticker) algoPackTable(ctx context.Context, metric string, q RangeQuery) (*iss.Table, error) {
	if !t.spec.SupportsMetric(metric) {
		return nil, &UnsupportedMetricError{Market: t.spec.Name, Metric: metric}
	}
	query, err := rangeQueryValues(q)
	if err != nil {
		return nil, err
	}
	offset, limit := pageWindow(q.Offset, q.Limit, tickerStatsLimit)
	return t.client.FetchTable(ctx, t.spec.algoPackPath(metric, t.secid), "data", query, offset, limit)
}

func (t *Ticker) resolveSectype(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sectype != "" {
		return t.sectype, nil
	}
	table, err := t.client.Table(ctx, t.spec.securitiesPath(), "securities", nil)
	if err != nil {
		return "", err
	}
	for row := 0; row < table.Len(); row++ {
		if table.String(row, "secid") != t.secid {
			continue
		}
		if sectype := table.String(row, "sectype"); sectype != "" {
			t.sectype = sectype
			return sectype, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrSectypeNotFound, t.secid)
}

func rangeQueryValues(q RangeQuery) (url.Values, error) {
	from, till, err := resolveRange(q.From, q.Till)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("from", from.Format(dateLayout))
	query.Set("till", till.Format(dateLayout))
	if q.Latest {
		query.Set("latest", "1")
	}
	return query, nil
}
