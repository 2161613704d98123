package moex

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicker(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
		[]interface{}{"SBER", "SMAL", "shares", "stock", "Sberbank odd lots", 0, 2, 1, "2011-11-21", nil},
	))
	client := stub.client()

	t.Run("primary board", func(t *testing.T) {
		tk, err := NewTicker(context.Background(), client, "sber")
		require.NoError(t, err)
		assert.Equal(t, "SBER", tk.Secid())
		assert.Equal(t, "shares", tk.Market())
		assert.Equal(t, "stock", tk.Engine())
		assert.Equal(t, "TQBR", tk.Board())
		assert.Equal(t, 2, tk.Decimals())
		assert.False(t, tk.Delisted())
	})

	t.Run("explicit board", func(t *testing.T) {
		tk, err := NewTicker(context.Background(), client, "SBER", WithTickerBoard("smal"))
		require.NoError(t, err)
		assert.Equal(t, "SMAL", tk.Board())
	})

	t.Run("board not listed", func(t *testing.T) {
		_, err := NewTicker(context.Background(), client, "SBER", WithTickerBoard("XXXX"))
		require.ErrorIs(t, err, ErrTickerNotFound)
	})
}

func TestNewTickerDelisted(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/YNDX", stubBoards(
		[]interface{}{"YNDX", "TQBR", "shares", "stock", "Yandex", 1, 2, 0, "2014-06-04", "2024-07-09"},
	))

	tk, err := NewTicker(context.Background(), stub.client(), "YNDX")
	require.NoError(t, err)
	assert.True(t, tk.Delisted())
}

func TestNewTickerNotFound(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/NOPE", stubBoards())

	_, err := NewTicker(context.Background(), stub.client(), "nope")
	require.ErrorIs(t, err, ErrTickerNotFound)

	_, err = NewTicker(context.Background(), stub.client(), "   ")
	require.ErrorIs(t, err, ErrTickerNotFound)
	assert.Equal(t, 1, stub.callCount(), "a blank name must not reach the service")
}

func TestNewTickerUnknownMarket(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/AAPL-RM", stubBoards(
		[]interface{}{"AAPL-RM", "TQBD", "foreignshares", "stock", "Apple", 1, 2, 1, "2020-08-24", nil},
	))

	_, err := NewTicker(context.Background(), stub.client(), "AAPL-RM")
	require.ErrorIs(t, err, ErrUnknownMarket)
	assert.Contains(t, err.Error(), "foreignshares")
}

func TestTickerInfo(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubSection{
		name: "boards",
		types: map[string]string{
			"is_primary": "int32", "decimals": "int32", "is_traded": "int32",
			"listed_from": "date", "history_from": "date",
		},
		columns: []string{"secid", "boardid", "market", "engine", "title", "is_primary", "decimals", "is_traded", "listed_from", "history_from"},
		rows: [][]interface{}{
			{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", "2007-07-20"},
			{"SBER", "SMAL", "shares", "stock", "Sberbank odd lots", 0, 2, 1, "2011-11-21", "2011-11-21"},
		},
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	records, err := tk.Info(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "SBER", first["ticker"])
	assert.Equal(t, "TQBR", first["board"])
	assert.Equal(t, "Sberbank", first["title"])
	assert.Equal(t, int64(1), first["is_primary"])
	_, kept := first["listed_from"]
	assert.True(t, kept, "listed_from belongs to the default projection")
	_, kept = first["history_from"]
	assert.False(t, kept, "history_from is outside the default projection")

	full, err := tk.Info(context.Background(), "*")
	require.NoError(t, err)
	assert.Contains(t, full[0], "history_from", "star projection keeps every column")
}

func TestTickerCandles(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	stub.handle("engines/stock/markets/shares/boards/TQBR/securities/SBER/candles", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2020-01-01", q.Get("from"))
		assert.Equal(t, "2020-01-10", q.Get("till"))
		assert.Equal(t, "24", q.Get("interval"))
		if q.Get("start") != "0" {
			writeStubDoc(w, stubSection{name: "candles", types: candleTypes, columns: candleColumns})
			return
		}
		writeStubDoc(w, stubSection{
			name: "candles", types: candleTypes, columns: candleColumns,
			rows: [][]interface{}{
				{255.0, 258.25, 259.5, 254.0, 1000000000, 3900000, "2020-01-03 00:00:00", "2020-01-03 23:59:59"},
				{258.3, 257.1, 260.0, 256.5, 900000000, 3500000, "2020-01-06 00:00:00", "2020-01-06 23:59:59"},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	candles, err := tk.Candles(context.Background(), CandleQuery{
		From:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Till:   time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC),
		Period: "1D",
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.True(t, first.Open.Equal(decimal.RequireFromString("255.0")), "open %s", first.Open)
	assert.True(t, first.Close.Equal(decimal.RequireFromString("258.25")))
	assert.True(t, first.High.Equal(decimal.RequireFromString("259.5")))
	assert.True(t, first.Low.Equal(decimal.RequireFromString("254.0")))
	assert.EqualValues(t, 3900000, first.Volume)
	assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), first.Begin)
	assert.Equal(t, time.Date(2020, 1, 3, 23, 59, 59, 0, time.UTC), first.End)
	assert.Equal(t, time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC), candles[1].Begin)
}

func TestTickerCandlesLatest(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	stub.handle("engines/stock/markets/shares/boards/TQBR/securities/SBER/candles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("iss.reverse"))
		writeStubDoc(w, stubSection{
			name: "candles", types: candleTypes, columns: candleColumns,
			rows: [][]interface{}{
				{269.4, 269.9, 270.0, 269.2, 500000, 1800, "2025-03-14 15:00:00", "2025-03-14 15:59:59"},
				{268.8, 269.4, 269.6, 268.5, 480000, 1700, "2025-03-14 14:00:00", "2025-03-14 14:59:59"},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	candles, err := tk.Candles(context.Background(), CandleQuery{Latest: true})
	require.NoError(t, err)
	require.Len(t, candles, 1, "latest narrows to the newest candle")
	assert.Equal(t, time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC), candles[0].Begin)
	assert.Equal(t, 2, stub.callCount(), "a single page satisfies the request")
}

func TestTickerCandlesResampled(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	stub.handle("engines/stock/markets/shares/boards/TQBR/securities/SBER/candles", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "60", q.Get("interval"), "2h aggregates the native hourly interval")
		if q.Get("start") != "0" {
			writeStubDoc(w, stubSection{name: "candles", types: candleTypes, columns: candleColumns})
			return
		}
		writeStubDoc(w, stubSection{
			name: "candles", types: candleTypes, columns: candleColumns,
			rows: [][]interface{}{
				{100, 105, 106, 99, 1000, 500, "2025-03-14 10:00:00", "2025-03-14 10:59:59"},
				{105, 103, 107, 102, 1100, 600, "2025-03-14 11:00:00", "2025-03-14 11:59:59"},
				{103, 108, 109, 101, 900, 550, "2025-03-14 12:00:00", "2025-03-14 12:59:59"},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	candles, err := tk.Candles(context.Background(), CandleQuery{
		From:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Period: "2h",
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), candles[0].Begin)
	assert.EqualValues(t, 1100, candles[0].Volume)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), candles[1].Begin)
	assert.EqualValues(t, 550, candles[1].Volume)
}

func TestTickerCandlesValidation(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	_, err = tk.Candles(context.Background(), CandleQuery{Period: "45min"})
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = tk.Candles(context.Background(), CandleQuery{
		From: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Till: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrInvalidDateRange)

	assert.Equal(t, 1, stub.callCount(), "validation failures must not reach the service")
}

func TestTickerTrades(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SIZ5", stubBoards(
		[]interface{}{"SIZ5", "RFUD", "forts", "futures", "Si-12.25", 1, 0, 1, "2025-06-01", nil},
	))
	fortsTradeTypes := map[string]string{"recno": "int64", "tradetime": "time", "price": "double", "quantity": "int32"}
	fortsTradeColumns := []string{"RECNO", "TRADETIME", "SECID", "BOARDID", "PRICE", "QUANTITY"}
	stub.handle("engines/futures/markets/forts/boards/RFUD/securities/SIZ5/trades", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "700000", q.Get("recno"), "derivatives tape pages by recno")
		if q.Get("start") != "0" {
			writeStubDoc(w, stubSection{name: "trades", types: fortsTradeTypes, columns: fortsTradeColumns})
			return
		}
		writeStubDoc(w, stubSection{
			name: "trades", types: fortsTradeTypes, columns: fortsTradeColumns,
			rows: [][]interface{}{
				{700001, "10:00:01", "SIZ5", "RFUD", 91520, 3},
				{700002, "10:00:02", "SIZ5", "RFUD", 91525, 1},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SiZ5")
	require.NoError(t, err)
	assert.Equal(t, "forts", tk.Market())

	trades, err := tk.Trades(context.Background(), TradeQuery{After: 700000})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.EqualValues(t, 700001, trades[0].TradeNo)
	assert.True(t, trades[1].Price.Equal(decimal.RequireFromString("91525")))
}

func TestTickerOrderBook(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	stub.handle("engines/stock/markets/shares/boards/TQBR/securities/SBER/orderbook", func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("start"), "the order book is a single snapshot")
		writeStubDoc(w, stubSection{
			name:    "orderbook",
			types:   map[string]string{"price": "double", "quantity": "int64", "updatetime": "time"},
			columns: []string{"SECID", "BOARDID", "BUYSELL", "PRICE", "QUANTITY", "UPDATETIME"},
			rows: [][]interface{}{
				{"SBER", "TQBR", "B", 269.4, 120, "10:05:52"},
				{"SBER", "TQBR", "S", 269.46, 80, "10:05:52"},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	levels, err := tk.OrderBook(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "B", levels[0].BuySell)
	assert.True(t, levels[1].Price.Equal(decimal.RequireFromString("269.46")))
	assert.Equal(t, 2, stub.callCount())
}

func TestTickerTradeStats(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SBER", stubBoards(
		[]interface{}{"SBER", "TQBR", "shares", "stock", "Sberbank", 1, 2, 1, "2007-07-20", nil},
	))
	statTypes := map[string]string{"tradedate": "date", "tradetime": "time", "pr_close": "double"}
	statColumns := []string{"secid", "tradedate", "tradetime", "pr_close"}
	stub.handle("datashop/algopack/eq/tradestats/SBER", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-03-13", q.Get("from"))
		assert.Equal(t, "2025-03-14", q.Get("till"))
		if q.Get("start") != "0" {
			writeStubDoc(w, stubSection{name: "data", types: statTypes, columns: statColumns})
			return
		}
		writeStubDoc(w, stubSection{
			name: "data", types: statTypes, columns: statColumns,
			rows: [][]interface{}{
				{"SBER", "2025-03-14", "10:05:00", 269.44},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SBER")
	require.NoError(t, err)

	stats, err := tk.TradeStats(context.Background(), RangeQuery{
		From: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		Till: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 5, 0, 0, time.UTC), stats[0].TS)
	assert.True(t, stats[0].PrClose.Equal(decimal.RequireFromString("269.44")))
}

func TestTickerUnsupportedMetric(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/IMOEX", stubBoards(
		[]interface{}{"IMOEX", "SNDX", "index", "stock", "MOEX Russia Index", 1, 2, 1, "2017-11-27", nil},
	))
	tk, err := NewTicker(context.Background(), stub.client(), "IMOEX")
	require.NoError(t, err)

	_, err = tk.ObStats(context.Background(), RangeQuery{})
	var unsupported *UnsupportedMetricError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "index", unsupported.Market)
	assert.Equal(t, "obstats", unsupported.Metric)

	_, err = tk.OrderBook(context.Background())
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "orderbook", unsupported.Metric)

	assert.Equal(t, 1, stub.callCount(), "only the listing lookup may hit the service")
}

func TestTickerFutOI(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/SIZ5", stubBoards(
		[]interface{}{"SIZ5", "RFUD", "forts", "futures", "Si-12.25", 1, 0, 1, "2025-06-01", nil},
	))
	stub.handleDoc("engines/futures/markets/forts/securities", stubSection{
		name:    "securities",
		columns: []string{"SECID", "SECTYPE", "SHORTNAME"},
		rows: [][]interface{}{
			{"RIZ5", "RI", "RTS-12.25"},
			{"SIZ5", "Si", "Si-12.25"},
		},
	})
	stub.handle("analyticalproducts/futoi/securities/Si", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-03-13", q.Get("from"))
		assert.Equal(t, "2025-03-14", q.Get("till"))
		writeStubDoc(w, stubSection{
			name:    "futoi",
			types:   map[string]string{"tradedate": "date", "pos": "int64"},
			columns: []string{"sectype", "clgroup", "tradedate", "pos"},
			rows: [][]interface{}{
				{"Si", "YUR", "2025-03-14", -500400},
			},
		})
	})
	tk, err := NewTicker(context.Background(), stub.client(), "SIZ5")
	require.NoError(t, err)

	query := RangeQuery{
		From:  time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		Till:  time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Limit: 1,
	}
	records, err := tk.FutOI(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Si", records[0]["sectype"])
	assert.Equal(t, int64(-500400), records[0]["pos"])

	_, err = tk.FutOI(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 4, stub.callCount(), "the asset code is resolved once and cached")
}

func TestTickerFutOIMissingSectype(t *testing.T) {
	stub := newISSStub(t)
	stub.handleDoc("securities/MXZ5", stubBoards(
		[]interface{}{"MXZ5", "RFUD", "forts", "futures", "MIX-12.25", 1, 0, 1, "2025-06-01", nil},
	))
	stub.handleDoc("engines/futures/markets/forts/securities", stubSection{
		name:    "securities",
		columns: []string{"SECID", "SECTYPE", "SHORTNAME"},
		rows: [][]interface{}{
			{"SIZ5", "Si", "Si-12.25"},
		},
	})
	tk, err := NewTicker(context.Background(), stub.client(), "MXZ5")
	require.NoError(t, err)

	_, err = tk.FutOI(context.Background(), RangeQuery{})
	require.ErrorIs(t, err, ErrSectypeNotFound)
	assert.Contains(t, err.Error(), "MXZ5")
}

// --- helpers ---

var candleTypes = map[string]string{
	"open": "double", "close": "double", "high": "double", "low": "double",
	"value": "double", "volume": "double", "begin": "datetime", "end": "datetime",
}

var candleColumns = []string{"open", "close", "high", "low", "value", "volume", "begin", "end"}

func stubBoards(rows ...[]interface{}) stubSection {
	return stubSection{
		name: "boards",
		types: map[string]string{
			"is_primary": "int32", "decimals": "int32", "is_traded": "int32",
			"listed_from": "date", "listed_till": "date",
		},
		columns: []string{"secid", "boardid", "market", "engine", "title", "is_primary", "decimals", "is_traded", "listed_from", "listed_till"},
		rows:    rows,
	}
}
