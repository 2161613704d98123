package moex

import (
	"fmt"
	"strconv"
	"strings"
)

// CandlePeriod is a sampling interval natively served by the exchange.
type CandlePeriod int

const (
	CandlePeriodMinute     CandlePeriod = 1
	CandlePeriodTenMinutes CandlePeriod = 10
	CandlePeriodHour       CandlePeriod = 60
	CandlePeriodDay        CandlePeriod = 24
	CandlePeriodWeek       CandlePeriod = 7
	CandlePeriodMonth      CandlePeriod = 31
)

func (p CandlePeriod) String() string {
	switch p {
	case CandlePeriodMinute:
		return "1min"
	case CandlePeriodTenMinutes:
		return "10min"
	case CandlePeriodHour:
		return "1h"
	case CandlePeriodDay:
		return "1D"
	case CandlePeriodWeek:
		return "1W"
	case CandlePeriodMonth:
		return "1M"
	default:
		return strconv.Itoa(int(p))
	}
}

const (
	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
)

// Period is a resolved candle sampling: the native interval requested from
// the service plus the bucket width rows are aggregated into afterwards.
// Minutes is zero when the interval is served natively.
type Period struct {
	Interval CandlePeriod
	Minutes  int
}

// Resampled reports whether rows need local aggregation.
func (p Period) Resampled() bool { return p.Minutes > 0 }

type periodSpec struct {
	interval CandlePeriod
	minutes  int
}

// periodTable maps period spellings to their sampling. Resampled periods
// aggregate the nearest finer native interval. "1m" is one minute while
// "1M" is one month, so the table is consulted case-sensitively first.
var periodTable = map[string]periodSpec{
	"1":     {CandlePeriodMinute, 0},
	"1m":    {CandlePeriodMinute, 0},
	"1min":  {CandlePeriodMinute, 0},
	"5m":    {CandlePeriodMinute, 5},
	"5min":  {CandlePeriodMinute, 5},
	"10":    {CandlePeriodTenMinutes, 0},
	"10m":   {CandlePeriodTenMinutes, 0},
	"10min": {CandlePeriodTenMinutes, 0},
	"15m":   {CandlePeriodMinute, 15},
	"15min": {CandlePeriodMinute, 15},
	"20m":   {CandlePeriodTenMinutes, 20},
	"20min": {CandlePeriodTenMinutes, 20},
	"30m":   {CandlePeriodTenMinutes, 30},
	"30min": {CandlePeriodTenMinutes, 30},
	"60":    {CandlePeriodHour, 0},
	"1h":    {CandlePeriodHour, 0},
	"2h":    {CandlePeriodHour, 120},
	"3h":    {CandlePeriodHour, 180},
	"6h":    {CandlePeriodHour, 360},
	"12h":   {CandlePeriodHour, 720},
	"24":    {CandlePeriodDay, 0},
	"1d":    {CandlePeriodDay, 0},
	"5d":    {CandlePeriodDay, 5 * minutesPerDay},
	"10d":   {CandlePeriodDay, 10 * minutesPerDay},
	"7":     {CandlePeriodWeek, 0},
	"1w":    {CandlePeriodWeek, 0},
	"2w":    {CandlePeriodWeek, 2 * minutesPerWeek},
	"4w":    {CandlePeriodWeek, 4 * minutesPerWeek},
	"31":    {CandlePeriodMonth, 0},
	"1M":    {CandlePeriodMonth, 0},
}

var acceptedPeriods = []string{
	"1min", "5min", "10min", "15min", "20min", "30min",
	"1h", "2h", "3h", "6h", "12h",
	"1D", "5D", "10D", "1W", "2W", "4W", "1M",
}

// ParsePeriod resolves a period spelling such as "10min", "4h" or "1D".
// The native interval numbers 1, 10, 60, 24, 7 and 31 are accepted as well.
// An empty value means one hour.
func ParsePeriod(raw string) (Period, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Period{Interval: CandlePeriodHour}, nil
	}
	if spec, ok := periodTable[value]; ok {
		return Period{Interval: spec.interval, Minutes: spec.minutes}, nil
	}
	if spec, ok := periodTable[strings.ToLower(value)]; ok {
		return Period{Interval: spec.interval, Minutes: spec.minutes}, nil
	}
	return Period{}, fmt.Errorf("%w: %q (accepted: %s)",
		ErrInvalidPeriod, raw, strings.Join(acceptedPeriods, ", "))
}
