package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/builder"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/stringx"
)

var (
	candlesFieldNames        = builder.RawFieldNames(&Candles{}, true)
	candlesRows              = strings.Join(candlesFieldNames, ",")
	candlesRowsExpectAutoSet = strings.Join(stringx.Remove(candlesFieldNames, "id", "created_at"), ",")

	cacheCandlesLatestPrefix = "cache:candles:latest:"
)

type (
	// CandlesModel wraps the candle mirror table. Rows are keyed by
	// (market, secid, period, begin_at) and written through Upsert only.
	CandlesModel interface {
		Upsert(ctx context.Context, data *Candles) error
		FindRange(ctx context.Context, market, secid, period string, from, till time.Time) ([]*Candles, error)
		LatestBegin(ctx context.Context, market, secid, period string) (time.Time, error)
	}

	defaultCandlesModel struct {
		sqlc.CachedConn
		table string
	}

	// Candles maps one row of the candles table.
	Candles struct {
		Id        int64     `db:"id"`
		Market    string    `db:"market"`
		Secid     string    `db:"secid"`
		Board     string    `db:"board"`
		Period    string    `db:"period"`
		BeginAt   time.Time `db:"begin_at"`
		EndAt     time.Time `db:"end_at"`
		Open      float64   `db:"open"`
		Close     float64   `db:"close"`
		High      float64   `db:"high"`
		Low       float64   `db:"low"`
		Value     float64   `db:"value"`
		Volume    int64     `db:"volume"`
		CreatedAt time.Time `db:"created_at"`
	}
)

// NewCandlesModel returns a model for the candles table.
func NewCandlesModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) CandlesModel {
	return &defaultCandlesModel{
		CachedConn: sqlc.NewConn(conn, c, opts...),
		table:      `"public"."candles"`,
	}
}

// Upsert inserts one candle or refreshes the row in place when the interval
// is already mirrored, then drops the latest-begin cache entry.
func (m *defaultCandlesModel) Upsert(ctx context.Context, data *Candles) error {
	latestKey := fmt.Sprintf("%s%v:%v:%v", cacheCandlesLatestPrefix, data.Market, data.Secid, data.Period)
	_, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf(`insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
on conflict (market, secid, period, begin_at) do update set
end_at = excluded.end_at, open = excluded.open, close = excluded.close, high = excluded.high,
low = excluded.low, value = excluded.value, volume = excluded.volume`, m.table, candlesRowsExpectAutoSet)
		return conn.ExecCtx(ctx, query, data.Market, data.Secid, data.Board, data.Period,
			data.BeginAt, data.EndAt, data.Open, data.Close, data.High, data.Low, data.Value, data.Volume)
	}, latestKey)
	return err
}

// FindRange returns mirrored candles for one instrument and period ordered
// by interval start. Both bounds are inclusive.
func (m *defaultCandlesModel) FindRange(ctx context.Context, market, secid, period string, from, till time.Time) ([]*Candles, error) {
	query := fmt.Sprintf(`select %s from %s where market = $1 and secid = $2 and period = $3 and begin_at >= $4 and begin_at <= $5 order by begin_at asc`, candlesRows, m.table)
	var resp []*Candles
	if err := m.QueryRowsNoCacheCtx(ctx, &resp, query, market, secid, period, from, till); err != nil {
		return nil, err
	}
	return resp, nil
}

// LatestBegin returns the most recent mirrored interval start, or
// ErrNotFound when the instrument has no rows yet.
func (m *defaultCandlesModel) LatestBegin(ctx context.Context, market, secid, period string) (time.Time, error) {
	latestKey := fmt.Sprintf("%s%v:%v:%v", cacheCandlesLatestPrefix, market, secid, period)
	var resp time.Time
	err := m.QueryRowCtx(ctx, &resp, latestKey, func(ctx context.Context, conn sqlx.SqlConn, v interface{}) error {
		query := fmt.Sprintf(`select begin_at from %s where market = $1 and secid = $2 and period = $3 order by begin_at desc limit 1`, m.table)
		return conn.QueryRowCtx(ctx, v, query, market, secid, period)
	})
	switch err {
	case nil:
		return resp, nil
	case sqlc.ErrNotFound:
		return time.Time{}, ErrNotFound
	default:
		return time.Time{}, err
	}
}
