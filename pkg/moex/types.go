package moex

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algopack-api/pkg/iss"
)

// Candle is one OHLCV sampling interval.
type Candle struct {
	Open   decimal.Decimal
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Value  decimal.Decimal
	Volume int64
	Begin  time.Time
	End    time.Time
}

// Trade is one print from the trade tape. TradeNo carries the tape cursor,
// which is the record number on derivatives markets.
type Trade struct {
	TradeNo  int64
	Ticker   string
	Board    string
	Time     time.Time
	SysTime  time.Time
	Price    decimal.Decimal
	Quantity int64
	Value    decimal.Decimal
	BuySell  string
}

// OrderBookLevel is one price level of the order book snapshot.
type OrderBookLevel struct {
	Ticker     string
	Board      string
	BuySell    string
	Price      decimal.Decimal
	Quantity   int64
	UpdateTime time.Time
}

// TradeStat is one five-minute trade super-candle.
type TradeStat struct {
	Ticker   string
	TS       time.Time
	PrOpen   decimal.Decimal
	PrHigh   decimal.Decimal
	PrLow    decimal.Decimal
	PrClose  decimal.Decimal
	PrChange decimal.Decimal
	Trades   int64
	Vol      int64
	Val      decimal.Decimal
	PrStd    decimal.Decimal
	Disb     decimal.Decimal
	PrVWAP   decimal.Decimal

	TradesBuy  int64
	VolBuy     int64
	ValBuy     decimal.Decimal
	PrVWAPBuy  decimal.Decimal
	TradesSell int64
	VolSell    int64
	ValSell    decimal.Decimal
	PrVWAPSell decimal.Decimal
}

// OrderStat is one five-minute order-flow super-candle.
type OrderStat struct {
	Ticker string
	TS     time.Time

	PutOrders     int64
	PutOrdersBuy  int64
	PutOrdersSell int64
	PutVol        int64
	PutVolBuy     int64
	PutVolSell    int64
	PutVal        decimal.Decimal
	PutValBuy     decimal.Decimal
	PutValSell    decimal.Decimal

	CancelOrders     int64
	CancelOrdersBuy  int64
	CancelOrdersSell int64
	CancelVol        int64
	CancelVolBuy     int64
	CancelVolSell    int64
	CancelVal        decimal.Decimal
	CancelValBuy     decimal.Decimal
	CancelValSell    decimal.Decimal

	PutVWAPBuy     decimal.Decimal
	PutVWAPSell    decimal.Decimal
	CancelVWAPBuy  decimal.Decimal
	CancelVWAPSell decimal.Decimal
}

// ObStat is one five-minute order-book super-candle.
type ObStat struct {
	Ticker string
	TS     time.Time

	SpreadBBO  decimal.Decimal
	SpreadLv10 decimal.Decimal
	Spread1Mio decimal.Decimal

	LevelsBuy  int64
	LevelsSell int64
	VolBuy     int64
	VolSell    int64
	ValBuy     decimal.Decimal
	ValSell    decimal.Decimal

	ImbalanceVolBBO int64
	ImbalanceValBBO decimal.Decimal
	ImbalanceVol    int64
	ImbalanceVal    decimal.Decimal

	VWAPBuy      decimal.Decimal
	VWAPSell     decimal.Decimal
	VWAPBuy1Mio  decimal.Decimal
	VWAPSell1Mio decimal.Decimal
}

func requireColumns(t *iss.Table, names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return &iss.MalformedResponseError{
				Section: t.Section(),
				Reason:  fmt.Sprintf("column %q missing", name),
			}
		}
	}
	return nil
}

// statTS merges the trade date and intraday time columns into one timestamp.
// The separate system time column is a load marker and is dropped.
func statTS(t *iss.Table, row int) time.Time {
	d := t.Time(row, "tradedate")
	tt := t.Time(row, "tradetime")
	return time.Date(d.Year(), d.Month(), d.Day(), tt.Hour(), tt.Minute(), tt.Second(), 0, time.UTC)
}

// DecodeCandles converts a candles table into typed rows.
func DecodeCandles(t *iss.Table) ([]Candle, error) {
	if err := requireColumns(t, "open", "close", "high", "low", "value", "volume", "begin", "end"); err != nil {
		return nil, err
	}
	out := make([]Candle, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, Candle{
			Open:   t.Decimal(row, "open"),
			Close:  t.Decimal(row, "close"),
			High:   t.Decimal(row, "high"),
			Low:    t.Decimal(row, "low"),
			Value:  t.Decimal(row, "value"),
			Volume: t.Int(row, "volume"),
			Begin:  t.Time(row, "begin"),
			End:    t.Time(row, "end"),
		})
	}
	return out, nil
}

// DecodeTrades converts a trade tape table into typed rows. The cursor is
// read from the tradeno column when present and from recno otherwise.
func DecodeTrades(t *iss.Table) ([]Trade, error) {
	if err := requireColumns(t, "tradetime", "price", "quantity"); err != nil {
		return nil, err
	}
	cursor := "tradeno"
	if !t.HasColumn(cursor) {
		cursor = "recno"
	}
	out := make([]Trade, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, Trade{
			TradeNo:  t.Int(row, cursor),
			Ticker:   t.String(row, "secid"),
			Board:    t.String(row, "boardid"),
			Time:     t.Time(row, "tradetime"),
			SysTime:  t.Time(row, "systime"),
			Price:    t.Decimal(row, "price"),
			Quantity: t.Int(row, "quantity"),
			Value:    t.Decimal(row, "value"),
			BuySell:  t.String(row, "buysell"),
		})
	}
	return out, nil
}

// DecodeOrderBook converts an order book table into typed levels.
func DecodeOrderBook(t *iss.Table) ([]OrderBookLevel, error) {
	if err := requireColumns(t, "price", "quantity", "buysell"); err != nil {
		return nil, err
	}
	out := make([]OrderBookLevel, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, OrderBookLevel{
			Ticker:     t.String(row, "secid"),
			Board:      t.String(row, "boardid"),
			BuySell:    t.String(row, "buysell"),
			Price:      t.Decimal(row, "price"),
			Quantity:   t.Int(row, "quantity"),
			UpdateTime: t.Time(row, "updatetime"),
		})
	}
	return out, nil
}

// DecodeTradeStats converts a tradestats table into typed rows.
func DecodeTradeStats(t *iss.Table) ([]TradeStat, error) {
	if err := requireColumns(t, "secid", "tradedate", "tradetime"); err != nil {
		return nil, err
	}
	out := make([]TradeStat, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, TradeStat{
			Ticker:   t.String(row, "secid"),
			TS:       statTS(t, row),
			PrOpen:   t.Decimal(row, "pr_open"),
			PrHigh:   t.Decimal(row, "pr_high"),
			PrLow:    t.Decimal(row, "pr_low"),
			PrClose:  t.Decimal(row, "pr_close"),
			PrChange: t.Decimal(row, "pr_change"),
			Trades:   t.Int(row, "trades"),
			Vol:      t.Int(row, "vol"),
			Val:      t.Decimal(row, "val"),
			PrStd:    t.Decimal(row, "pr_std"),
			Disb:     t.Decimal(row, "disb"),
			PrVWAP:   t.Decimal(row, "pr_vwap"),

			TradesBuy:  t.Int(row, "trades_b"),
			VolBuy:     t.Int(row, "vol_b"),
			ValBuy:     t.Decimal(row, "val_b"),
			PrVWAPBuy:  t.Decimal(row, "pr_vwap_b"),
			TradesSell: t.Int(row, "trades_s"),
			VolSell:    t.Int(row, "vol_s"),
			ValSell:    t.Decimal(row, "val_s"),
			PrVWAPSell: t.Decimal(row, "pr_vwap_s"),
		})
	}
	return out, nil
}

// DecodeOrderStats converts an orderstats table into typed rows.
func DecodeOrderStats(t *iss.Table) ([]OrderStat, error) {
	if err := requireColumns(t, "secid", "tradedate", "tradetime"); err != nil {
		return nil, err
	}
	out := make([]OrderStat, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, OrderStat{
			Ticker: t.String(row, "secid"),
			TS:     statTS(t, row),

			PutOrders:     t.Int(row, "put_orders"),
			PutOrdersBuy:  t.Int(row, "put_orders_b"),
			PutOrdersSell: t.Int(row, "put_orders_s"),
			PutVol:        t.Int(row, "put_vol"),
			PutVolBuy:     t.Int(row, "put_vol_b"),
			PutVolSell:    t.Int(row, "put_vol_s"),
			PutVal:        t.Decimal(row, "put_val"),
			PutValBuy:     t.Decimal(row, "put_val_b"),
			PutValSell:    t.Decimal(row, "put_val_s"),

			CancelOrders:     t.Int(row, "cancel_orders"),
			CancelOrdersBuy:  t.Int(row, "cancel_orders_b"),
			CancelOrdersSell: t.Int(row, "cancel_orders_s"),
			CancelVol:        t.Int(row, "cancel_vol"),
			CancelVolBuy:     t.Int(row, "cancel_vol_b"),
			CancelVolSell:    t.Int(row, "cancel_vol_s"),
			CancelVal:        t.Decimal(row, "cancel_val"),
			CancelValBuy:     t.Decimal(row, "cancel_val_b"),
			CancelValSell:    t.Decimal(row, "cancel_val_s"),

			PutVWAPBuy:     t.Decimal(row, "put_vwap_b"),
			PutVWAPSell:    t.Decimal(row, "put_vwap_s"),
			CancelVWAPBuy:  t.Decimal(row, "cancel_vwap_b"),
			CancelVWAPSell: t.Decimal(row, "cancel_vwap_s"),
		})
	}
	return out, nil
}

// DecodeObStats converts an obstats table into typed rows.
func DecodeObStats(t *iss.Table) ([]ObStat, error) {
	if err := requireColumns(t, "secid", "tradedate", "tradetime"); err != nil {
		return nil, err
	}
	out := make([]ObStat, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		out = append(out, ObStat{
			Ticker: t.String(row, "secid"),
			TS:     statTS(t, row),

			SpreadBBO:  t.Decimal(row, "spread_bbo"),
			SpreadLv10: t.Decimal(row, "spread_lv10"),
			Spread1Mio: t.Decimal(row, "spread_1mio"),

			LevelsBuy:  t.Int(row, "levels_b"),
			LevelsSell: t.Int(row, "levels_s"),
			VolBuy:     t.Int(row, "vol_b"),
			VolSell:    t.Int(row, "vol_s"),
			ValBuy:     t.Decimal(row, "val_b"),
			ValSell:    t.Decimal(row, "val_s"),

			ImbalanceVolBBO: t.Int(row, "imbalance_vol_bbo"),
			ImbalanceValBBO: t.Decimal(row, "imbalance_val_bbo"),
			ImbalanceVol:    t.Int(row, "imbalance_vol"),
			ImbalanceVal:    t.Decimal(row, "imbalance_val"),

			VWAPBuy:      t.Decimal(row, "vwap_b"),
			VWAPSell:     t.Decimal(row, "vwap_s"),
			VWAPBuy1Mio:  t.Decimal(row, "vwap_b_1mio"),
			VWAPSell1Mio: t.Decimal(row, "vwap_s_1mio"),
		})
	}
	return out, nil
}
