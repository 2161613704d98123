package moex

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCandle is a candle built client-side from the market-wide trade
// tape, one stream per instrument.
type MarketCandle struct {
	Ticker string
	Candle
}

// Resample aggregates candles into wall-clock buckets of the given width.
// Buckets are aligned to midnight of the first candle's day, so a 2h series
// starts at 00:00, 02:00 and so on regardless of when trading opened. Rows
// are expected in ascending order. Buckets without rows are skipped.
func Resample(candles []Candle, minutes int) []Candle {
	if minutes <= 0 || len(candles) == 0 {
		return append([]Candle(nil), candles...)
	}
	step := time.Duration(minutes) * time.Minute
	first := candles[0].Begin
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())

	out := make([]Candle, 0, len(candles))
	k := 0
	for k < len(candles) {
		offset := candles[k].Begin.Sub(day)
		if offset < 0 {
			offset = 0
		}
		bucketStart := day.Add(offset.Truncate(step))
		bucketEnd := bucketStart.Add(step)

		c := Candle{
			Open:  candles[k].Open,
			High:  candles[k].High,
			Low:   candles[k].Low,
			Begin: bucketStart,
			End:   bucketEnd.Add(-time.Second),
		}
		value := decimal.Zero
		for k < len(candles) && candles[k].Begin.Before(bucketEnd) {
			row := candles[k]
			if row.High.GreaterThan(c.High) {
				c.High = row.High
			}
			if row.Low.LessThan(c.Low) {
				c.Low = row.Low
			}
			c.Close = row.Close
			c.Volume += row.Volume
			value = value.Add(row.Value)
			k++
		}
		c.Value = value.Round(0)
		out = append(out, c)
	}
	return out
}

// candlesFromTrades folds a trade window into fixed-width candles, one
// series per instrument. Trade times must be full timestamps. A bucket
// still in progress closes at its last trade instead of the bucket edge.
func candlesFromTrades(trades []Trade, begin time.Time, interval time.Duration, now time.Time) []MarketCandle {
	if len(trades) == 0 {
		return nil
	}
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ticker != sorted[j].Ticker {
			return sorted[i].Ticker < sorted[j].Ticker
		}
		return sorted[i].Time.Before(sorted[j].Time)
	})

	var out []MarketCandle
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].Ticker == sorted[i].Ticker {
			j++
		}
		out = append(out, bucketTrades(sorted[i:j], begin, interval, now)...)
		i = j
	}
	return out
}

func bucketTrades(group []Trade, begin time.Time, interval time.Duration, now time.Time) []MarketCandle {
	var out []MarketCandle
	k := 0
	for k < len(group) {
		offset := group[k].Time.Sub(begin)
		if offset < 0 {
			offset = 0
		}
		bucketStart := begin.Add(offset.Truncate(interval))
		bucketEnd := bucketStart.Add(interval)

		c := MarketCandle{Ticker: group[k].Ticker}
		c.Open = group[k].Price
		c.High = group[k].Price
		c.Low = group[k].Price
		c.Begin = bucketStart

		value := decimal.Zero
		var last Trade
		for k < len(group) && group[k].Time.Before(bucketEnd) {
			tr := group[k]
			if tr.Price.GreaterThan(c.High) {
				c.High = tr.Price
			}
			if tr.Price.LessThan(c.Low) {
				c.Low = tr.Price
			}
			c.Close = tr.Price
			c.Volume += tr.Quantity
			value = value.Add(tr.Value)
			last = tr
			k++
		}
		c.Value = value.Round(1)
		if bucketEnd.After(now) {
			c.End = last.Time.Truncate(time.Second)
		} else {
			c.End = bucketEnd.Add(-time.Second)
		}
		out = append(out, c)
	}
	return out
}
