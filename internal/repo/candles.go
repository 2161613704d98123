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

// CandlesRepo mirrors candle batches into Postgres and serves range reads
// through a Redis payload cache.
type CandlesRepo interface {
	// SaveBatch upserts one instrument's candles and invalidates cached
	// windows. It returns the number of rows written; on error the count
	// covers the rows written before the failure.
	SaveBatch(ctx context.Context, market, board, ticker, period string, batch []moex.Candle) (int, error)

	// Range returns mirrored candles ordered by interval start. Both
	// bounds are inclusive.
	Range(ctx context.Context, market, ticker, period string, from, till time.Time) ([]moex.Candle, error)

	// LatestBegin returns the newest mirrored interval start, or the zero
	// time when the instrument has no rows yet.
	LatestBegin(ctx context.Context, market, ticker, period string) (time.Time, error)
}

type candlesRepo struct {
	model model.CandlesModel
	store *cacheutil.Store
	ttl   cacheutil.TTLSet
}

func newCandlesRepo(deps Dependencies) CandlesRepo {
	return &candlesRepo{
		model: deps.CandlesModel,
		store: deps.Store,
		ttl:   deps.TTL,
	}
}

func (r *candlesRepo) SaveBatch(ctx context.Context, market, board, ticker, period string, batch []moex.Candle) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	for i := range batch {
		if err := r.model.Upsert(ctx, candleRow(market, board, ticker, period, batch[i])); err != nil {
			return i, fmt.Errorf("candlesRepo.SaveBatch upsert %s %s: %w",
				ticker, batch[i].Begin.Format(time.RFC3339), err)
		}
	}
	if err := r.store.DeleteByPattern(ctx, cacheutil.CandlePattern(market, ticker)); err != nil {
		logx.WithContext(ctx).Errorf("candlesRepo.SaveBatch invalidate: %v", err)
	}
	return len(batch), nil
}

func (r *candlesRepo) Range(ctx context.Context, market, ticker, period string, from, till time.Time) ([]moex.Candle, error) {
	key := cacheutil.CandleRangeKey(market, ticker, period, from, till)

	var cached []*model.Candles
	if ok, err := r.store.Get(ctx, key, &cached); err != nil {
		logx.WithContext(ctx).Errorf("candlesRepo.Range cache get: %v", err)
	} else if ok {
		return candlesFromRows(cached), nil
	}

	rows, err := r.model.FindRange(ctx, market, ticker, period, from, till)
	if err != nil {
		return nil, fmt.Errorf("candlesRepo.Range query: %w", err)
	}
	if err := r.store.Set(ctx, key, rows, cacheutil.CandleRangeTTL(r.ttl)); err != nil {
		logx.WithContext(ctx).Errorf("candlesRepo.Range cache set: %v", err)
	}
	return candlesFromRows(rows), nil
}

func (r *candlesRepo) LatestBegin(ctx context.Context, market, ticker, period string) (time.Time, error) {
	begin, err := r.model.LatestBegin(ctx, market, ticker, period)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("candlesRepo.LatestBegin query: %w", err)
	}
	return begin, nil
}

func candleRow(market, board, ticker, period string, c moex.Candle) *model.Candles {
	return &model.Candles{
		Market:  market,
		Secid:   ticker,
		Board:   board,
		Period:  period,
		BeginAt: c.Begin,
		EndAt:   c.End,
		Open:    c.Open.InexactFloat64(),
		Close:   c.Close.InexactFloat64(),
		High:    c.High.InexactFloat64(),
		Low:     c.Low.InexactFloat64(),
		Value:   c.Value.InexactFloat64(),
		Volume:  c.Volume,
	}
}

func candlesFromRows(rows []*model.Candles) []moex.Candle {
	out := make([]moex.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, moex.Candle{
			Open:   decimal.NewFromFloat(row.Open),
			Close:  decimal.NewFromFloat(row.Close),
			High:   decimal.NewFromFloat(row.High),
			Low:    decimal.NewFromFloat(row.Low),
			Value:  decimal.NewFromFloat(row.Value),
			Volume: row.Volume,
			Begin:  row.BeginAt,
			End:    row.EndAt,
		})
	}
	return out
}
