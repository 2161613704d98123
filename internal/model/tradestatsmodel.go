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
	tradeStatsFieldNames        = builder.RawFieldNames(&TradeStats{}, true)
	tradeStatsRows              = strings.Join(tradeStatsFieldNames, ",")
	tradeStatsRowsExpectAutoSet = strings.Join(stringx.Remove(tradeStatsFieldNames, "id", "created_at"), ",")

	cacheTradeStatsLatestPrefix = "cache:tradeStats:latest:"
)

type (
	// TradeStatsModel wraps the super-candle mirror table. Rows are keyed by
	// (market, secid, ts) and written through Upsert only.
	TradeStatsModel interface {
		Upsert(ctx context.Context, data *TradeStats) error
		// FindRange returns rows for one instrument, or the whole market
		// when secid is empty. Both bounds are inclusive.
		FindRange(ctx context.Context, market, secid string, from, till time.Time) ([]*TradeStats, error)
		LatestTS(ctx context.Context, market, secid string) (time.Time, error)
	}

	defaultTradeStatsModel struct {
		sqlc.CachedConn
		table string
	}

	// TradeStats maps one row of the trade_stats table. Column names follow
	// the upstream dataset so mirrored rows stay greppable against it.
	TradeStats struct {
		Id       int64     `db:"id"`
		Market   string    `db:"market"`
		Secid    string    `db:"secid"`
		Ts       time.Time `db:"ts"`
		PrOpen   float64   `db:"pr_open"`
		PrHigh   float64   `db:"pr_high"`
		PrLow    float64   `db:"pr_low"`
		PrClose  float64   `db:"pr_close"`
		PrChange float64   `db:"pr_change"`
		Trades   int64     `db:"trades"`
		Vol      int64     `db:"vol"`
		Val      float64   `db:"val"`
		PrStd    float64   `db:"pr_std"`
		Disb     float64   `db:"disb"`
		PrVwap   float64   `db:"pr_vwap"`
		TradesB  int64     `db:"trades_b"`
		VolB     int64     `db:"vol_b"`
		ValB     float64   `db:"val_b"`
		PrVwapB  float64   `db:"pr_vwap_b"`
		TradesS  int64     `db:"trades_s"`
		VolS     int64     `db:"vol_s"`
		ValS     float64   `db:"val_s"`
		PrVwapS  float64   `db:"pr_vwap_s"`

		CreatedAt time.Time `db:"created_at"`
	}
)

// NewTradeStatsModel returns a model for the trade_stats table.
func NewTradeStatsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) TradeStatsModel {
	return &defaultTradeStatsModel{
		CachedConn: sqlc.NewConn(conn, c, opts...),
		table:      `"public"."trade_stats"`,
	}
}

// Upsert inserts one super-candle or refreshes the row in place, then drops
// the latest-ts cache entries for the instrument and the market.
func (m *defaultTradeStatsModel) Upsert(ctx context.Context, data *TradeStats) error {
	latestKey := fmt.Sprintf("%s%v:%v", cacheTradeStatsLatestPrefix, data.Market, data.Secid)
	marketKey := fmt.Sprintf("%s%v:", cacheTradeStatsLatestPrefix, data.Market)
	_, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf(`insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
on conflict (market, secid, ts) do update set
pr_open = excluded.pr_open, pr_high = excluded.pr_high, pr_low = excluded.pr_low,
pr_close = excluded.pr_close, pr_change = excluded.pr_change, trades = excluded.trades,
vol = excluded.vol, val = excluded.val, pr_std = excluded.pr_std, disb = excluded.disb,
pr_vwap = excluded.pr_vwap, trades_b = excluded.trades_b, vol_b = excluded.vol_b,
val_b = excluded.val_b, pr_vwap_b = excluded.pr_vwap_b, trades_s = excluded.trades_s,
vol_s = excluded.vol_s, val_s = excluded.val_s, pr_vwap_s = excluded.pr_vwap_s`, m.table, tradeStatsRowsExpectAutoSet)
		return conn.ExecCtx(ctx, query, data.Market, data.Secid, data.Ts,
			data.PrOpen, data.PrHigh, data.PrLow, data.PrClose, data.PrChange,
			data.Trades, data.Vol, data.Val, data.PrStd, data.Disb, data.PrVwap,
			data.TradesB, data.VolB, data.ValB, data.PrVwapB,
			data.TradesS, data.VolS, data.ValS, data.PrVwapS)
	}, latestKey, marketKey)
	return err
}

func (m *defaultTradeStatsModel) FindRange(ctx context.Context, market, secid string, from, till time.Time) ([]*TradeStats, error) {
	var resp []*TradeStats
	var err error
	if secid == "" {
		query := fmt.Sprintf(`select %s from %s where market = $1 and ts >= $2 and ts <= $3 order by ts asc, secid asc`, tradeStatsRows, m.table)
		err = m.QueryRowsNoCacheCtx(ctx, &resp, query, market, from, till)
	} else {
		query := fmt.Sprintf(`select %s from %s where market = $1 and secid = $2 and ts >= $3 and ts <= $4 order by ts asc`, tradeStatsRows, m.table)
		err = m.QueryRowsNoCacheCtx(ctx, &resp, query, market, secid, from, till)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// LatestTS returns the most recent mirrored super-candle timestamp for one
// instrument, or for the whole market when secid is empty. ErrNotFound
// signals an empty mirror.
func (m *defaultTradeStatsModel) LatestTS(ctx context.Context, market, secid string) (time.Time, error) {
	latestKey := fmt.Sprintf("%s%v:%v", cacheTradeStatsLatestPrefix, market, secid)
	var resp time.Time
	err := m.QueryRowCtx(ctx, &resp, latestKey, func(ctx context.Context, conn sqlx.SqlConn, v interface{}) error {
		if secid == "" {
			query := fmt.Sprintf(`select ts from %s where market = $1 order by ts desc limit 1`, m.table)
			return conn.QueryRowCtx(ctx, v, query, market)
		}
		query := fmt.Sprintf(`select ts from %s where market = $1 and secid = $2 order by ts desc limit 1`, m.table)
		return conn.QueryRowCtx(ctx, v, query, market, secid)
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
