package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	cacheutil "algopack-api/internal/cache"
	"algopack-api/internal/model"
	"algopack-api/pkg/moex"
)

// TradeStatsRepo mirrors trade super-candles into Postgres and serves range
// reads through a Redis payload cache. An empty ticker addresses the whole
// market.
type TradeStatsRepo interface {
	// SaveBatch upserts super-candles and invalidates cached windows for
	// every instrument in the batch. It returns the number of rows
	// written; on error the count covers the rows written before the
	// failure.
	SaveBatch(ctx context.Context, market string, batch []moex.TradeStat) (int, error)

	// Range returns mirrored super-candles ordered by timestamp. Both
	// bounds are inclusive.
	Range(ctx context.Context, market, ticker string, from, till time.Time) ([]moex.TradeStat, error)

	// LatestTS returns the newest mirrored timestamp, or the zero time
	// when nothing is mirrored yet.
	LatestTS(ctx context.Context, market, ticker string) (time.Time, error)
}

type tradeStatsRepo struct {
	model model.TradeStatsModel
	store *cacheutil.Store
	ttl   cacheutil.TTLSet
}

func newTradeStatsRepo(deps Dependencies) TradeStatsRepo {
	return &tradeStatsRepo{
		model: deps.TradeStatsModel,
		store: deps.Store,
		ttl:   deps.TTL,
	}
}

func (r *tradeStatsRepo) SaveBatch(ctx context.Context, market string, batch []moex.TradeStat) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	seen := map[string]struct{}{}
	for i := range batch {
		if err := r.model.Upsert(ctx, tradeStatRow(market, batch[i])); err != nil {
			return i, fmt.Errorf("tradeStatsRepo.SaveBatch upsert %s %s: %w",
				batch[i].Ticker, batch[i].TS.Format(time.RFC3339), err)
		}
		seen[batch[i].Ticker] = struct{}{}
	}
	// One pattern per instrument plus the market-wide windows.
	seen[""] = struct{}{}
	for ticker := range seen {
		if err := r.store.DeleteByPattern(ctx, cacheutil.TradeStatsPattern(market, ticker)); err != nil {
			logx.WithContext(ctx).Errorf("tradeStatsRepo.SaveBatch invalidate: %v", err)
		}
	}
	return len(batch), nil
}

func (r *tradeStatsRepo) Range(ctx context.Context, market, ticker string, from, till time.Time) ([]moex.TradeStat, error) {
	key := cacheutil.TradeStatsRangeKey(market, ticker, from, till)

	var cached []*model.TradeStats
	if ok, err := r.store.Get(ctx, key, &cached); err != nil {
		logx.WithContext(ctx).Errorf("tradeStatsRepo.Range cache get: %v", err)
	} else if ok {
		return tradeStatsFromRows(cached), nil
	}

	rows, err := r.model.FindRange(ctx, market, ticker, from, till)
	if err != nil {
		return nil, fmt.Errorf("tradeStatsRepo.Range query: %w", err)
	}
	if err := r.store.Set(ctx, key, rows, cacheutil.TradeStatsRangeTTL(r.ttl)); err != nil {
		logx.WithContext(ctx).Errorf("tradeStatsRepo.Range cache set: %v", err)
	}
	return tradeStatsFromRows(rows), nil
}

func (r *tradeStatsRepo) LatestTS(ctx context.Context, market, ticker string) (time.Time, error) {
	ts, err := r.model.LatestTS(ctx, market, ticker)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("tradeStatsRepo.LatestTS query: %w", err)
	}
	return ts, nil
}

func tradeStatRow(market string, s moex.TradeStat) *model.TradeStats {
	return &model.TradeStats{
		Market:   market,
		Secid:    s.Ticker,
		Ts:       s.TS,
		PrOpen:   s.PrOpen.InexactFloat64(),
		PrHigh:   s.PrHigh.InexactFloat64(),
		PrLow:    s.PrLow.InexactFloat64(),
		PrClose:  s.PrClose.InexactFloat64(),
		PrChange: s.PrChange.InexactFloat64(),
		Trades:   s.Trades,
		Vol:      s.Vol,
		Val:      s.Val.InexactFloat64(),
		PrStd:    s.PrStd.InexactFloat64(),
		Disb:     s.Disb.InexactFloat64(),
		PrVwap:   s.PrVWAP.InexactFloat64(),
		TradesB:  s.TradesBuy,
		VolB:     s.VolBuy,
		ValB:     s.ValBuy.InexactFloat64(),
		PrVwapB:  s.PrVWAPBuy.InexactFloat64(),
		TradesS:  s.TradesSell,
		VolS:     s.VolSell,
		ValS:     s.ValSell.InexactFloat64(),
		PrVwapS:  s.PrVWAPSell.InexactFloat64(),
	}
}

func tradeStatsFromRows(rows []*model.TradeStats) []moex.TradeStat {
	out := make([]moex.TradeStat, 0, len(rows))
	for _, row := range rows {
		out = append(out, moex.TradeStat{
			Ticker:     row.Secid,
			TS:         row.Ts,
			PrOpen:     decimal.NewFromFloat(row.PrOpen),
			PrHigh:     decimal.NewFromFloat(row.PrHigh),
			PrLow:      decimal.NewFromFloat(row.PrLow),
			PrClose:    decimal.NewFromFloat(row.PrClose),
			PrChange:   decimal.NewFromFloat(row.PrChange),
			Trades:     row.Trades,
			Vol:        row.Vol,
			Val:        decimal.NewFromFloat(row.Val),
			PrStd:      decimal.NewFromFloat(row.PrStd),
			Disb:       decimal.NewFromFloat(row.Disb),
			PrVWAP:     decimal.NewFromFloat(row.PrVwap),
			TradesBuy:  row.TradesB,
			VolBuy:     row.VolB,
			ValBuy:     decimal.NewFromFloat(row.ValB),
			PrVWAPBuy:  decimal.NewFromFloat(row.PrVwapB),
			TradesSell: row.TradesS,
			VolSell:    row.VolS,
			ValSell:    decimal.NewFromFloat(row.ValS),
			PrVWAPSell: decimal.NewFromFloat(row.PrVwapS),
		})
	}
	return out
}
