package moex

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMarket indicates a market name that matches no catalog entry.
	ErrUnknownMarket = errors.New("moex: unknown market name")
	// ErrTickerNotFound indicates an instrument the exchange does not list.
	ErrTickerNotFound = errors.New("moex: ticker not found")
	// ErrSectypeNotFound indicates a futures instrument without an asset code,
	// which open-interest data is keyed by.
	ErrSectypeNotFound = errors.New("moex: sectype not found")
	// ErrInvalidPeriod indicates a candle period outside the accepted set.
	ErrInvalidPeriod = errors.New("moex: invalid candle period")
	// ErrInvalidDateRange indicates a till date earlier than the from date.
	ErrInvalidDateRange = errors.New("moex: till date before from date")
)

// UnsupportedMetricError reports a metric the market does not serve. It is
// raised before any request is issued.
type UnsupportedMetricError struct {
	Market string
	Metric string
}

func (e *UnsupportedMetricError) Error() string {
	return fmt.Sprintf("moex: metric %q is not supported by market %q", e.Metric, e.Market)
}
