// Package ingest runs the mirror jobs that copy exchange datasets into
// Postgres on a fixed cadence. Each cycle walks the configured jobs, fans
// instrument fetches out over a bounded worker group and records every run
// in the journal and the run log.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	cacheutil "algopack-api/internal/cache"
	"algopack-api/internal/config"
	"algopack-api/internal/model"
	"algopack-api/pkg/iss"
	"algopack-api/pkg/journal"
	"algopack-api/pkg/moex"
)

const (
	resolveTimeout = 15 * time.Second
	fetchTimeout   = 45 * time.Second

	dateLayout = "2006-01-02"
)

// CandleSink mirrors per-instrument candles and reports how far the mirror
// already reaches.
type CandleSink interface {
	SaveBatch(ctx context.Context, market, board, ticker, period string, batch []moex.Candle) (int, error)
	LatestBegin(ctx context.Context, market, ticker, period string) (time.Time, error)
}

// TradeStatSink mirrors trade super-candles. An empty ticker addresses the
// market-wide watermark.
type TradeStatSink interface {
	SaveBatch(ctx context.Context, market string, batch []moex.TradeStat) (int, error)
	LatestTS(ctx context.Context, market, ticker string) (time.Time, error)
}

// RunLog persists one audit row per job run.
type RunLog interface {
	Insert(ctx context.Context, data *model.IngestRuns) (sql.Result, error)
}

// Dependencies carries the collaborators of the ingest service. Client,
// Candles, Stats and Journal are required; Runs and Guard degrade to
// no-ops when absent.
type Dependencies struct {
	Client  *iss.Client
	Candles CandleSink
	Stats   TradeStatSink
	Runs    RunLog
	Journal *journal.Writer
	Guard   *cacheutil.Store
	TTL     cacheutil.TTLSet
}

// Service drives the mirror jobs. Construct it with New and start it with
// Run; every job run leaves a journal record.
type Service struct {
	cfg  config.IngestConf
	deps Dependencies

	newRunID func() string

	mu      sync.Mutex
	tickers map[string]*moex.Ticker
}

// New validates the dependencies and prepares the service.
func New(cfg config.IngestConf, deps Dependencies) (*Service, error) {
	if deps.Client == nil {
		return nil, errors.New("ingest: missing Client dependency")
	}
	if deps.Candles == nil {
		return nil, errors.New("ingest: missing Candles dependency")
	}
	if deps.Stats == nil {
		return nil, errors.New("ingest: missing Stats dependency")
	}
	if deps.Journal == nil {
		return nil, errors.New("ingest: missing Journal dependency")
	}
	if deps.Guard == nil {
		deps.Guard = cacheutil.NewStore(nil)
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 300
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 1
	}
	return &Service{
		cfg:      cfg,
		deps:     deps,
		newRunID: func() string { return uuid.New().String() },
		tickers:  make(map[string]*moex.Ticker),
	}, nil
}

// Run executes one cycle immediately and then repeats on the configured
// interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if len(s.cfg.Jobs) == 0 {
		logx.WithContext(ctx).Info("ingest: no jobs configured")
		return
	}
	s.RunCycle(ctx)
	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle walks every configured job once. Jobs run sequentially; the
// instruments inside a job run concurrently.
func (s *Service) RunCycle(ctx context.Context) {
	for _, job := range s.cfg.Jobs {
		for _, metric := range job.Metrics {
			if ctx.Err() != nil {
				return
			}
			s.runJob(ctx, job, metric)
		}
	}
}

func (s *Service) runJob(ctx context.Context, job config.JobConf, metric string) {
	runID := s.newRunID()
	lockKey := cacheutil.IngestLockKey(job.Market, metric)
	won, err := s.deps.Guard.SetNX(ctx, lockKey, runID, cacheutil.IngestLockTTL(s.deps.TTL))
	if err != nil {
		// A failing guard does not stop the mirror.
		logx.WithContext(ctx).Errorf("ingest: lock market=%s metric=%s err=%v", job.Market, metric, err)
		won = true
	}
	if !won {
		logx.WithContext(ctx).Infof("ingest: skip market=%s metric=%s run=%s reason=locked", job.Market, metric, runID)
		return
	}
	defer func() {
		if err := s.deps.Guard.Delete(ctx, lockKey); err != nil {
			logx.WithContext(ctx).Errorf("ingest: unlock market=%s metric=%s err=%v", job.Market, metric, err)
		}
	}()

	started := time.Now()
	rows, runErr := s.mirror(ctx, job, metric)
	if runErr != nil && ctx.Err() == nil {
		logx.WithContext(ctx).Errorf("ingest: run market=%s metric=%s run=%s rows=%d err=%v",
			job.Market, metric, runID, rows, runErr)
	}
	if ctx.Err() != nil && rows == 0 {
		// Runs cancelled before any write leave no record.
		return
	}
	s.record(ctx, job, metric, runID, started, rows, runErr)
}

func (s *Service) mirror(ctx context.Context, job config.JobConf, metric string) (int, error) {
	switch metric {
	case moex.MetricCandles:
		return s.mirrorCandles(ctx, job)
	case moex.MetricTradeStats:
		if len(job.Tickers) == 0 {
			return s.mirrorMarketStats(ctx, job)
		}
		return s.mirrorTickerStats(ctx, job)
	default:
		return 0, fmt.Errorf("ingest: no mirror for metric %q", metric)
	}
}

func (s *Service) mirrorCandles(ctx context.Context, job config.JobConf) (int, error) {
	now := time.Now()
	var written atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, secid := range job.Tickers {
		secid := secid
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tk, err := s.resolveTicker(ctx, job, secid)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", secid, err)
			}
			mark, err := s.deps.Candles.LatestBegin(ctx, tk.Market(), secid, job.CandlePeriod)
			if err != nil {
				return fmt.Errorf("watermark %s: %w", secid, err)
			}
			from, till := s.window(mark, now)
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			batch, err := tk.Candles(fetchCtx, moex.CandleQuery{From: from, Till: till, Period: job.CandlePeriod})
			cancel()
			if err != nil {
				return fmt.Errorf("candles %s: %w", secid, err)
			}
			n, err := s.deps.Candles.SaveBatch(ctx, tk.Market(), tk.Board(), secid, job.CandlePeriod, batch)
			written.Add(int64(n))
			if err != nil {
				return fmt.Errorf("save %s: %w", secid, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

func (s *Service) mirrorTickerStats(ctx context.Context, job config.JobConf) (int, error) {
	now := time.Now()
	var written atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, secid := range job.Tickers {
		secid := secid
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tk, err := s.resolveTicker(ctx, job, secid)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", secid, err)
			}
			mark, err := s.deps.Stats.LatestTS(ctx, tk.Market(), secid)
			if err != nil {
				return fmt.Errorf("watermark %s: %w", secid, err)
			}
			from, till := s.window(mark, now)
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			batch, err := tk.TradeStats(fetchCtx, moex.RangeQuery{From: from, Till: till})
			cancel()
			if err != nil {
				return fmt.Errorf("tradestats %s: %w", secid, err)
			}
			n, err := s.deps.Stats.SaveBatch(ctx, tk.Market(), batch)
			written.Add(int64(n))
			if err != nil {
				return fmt.Errorf("save %s: %w", secid, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

// mirrorMarketStats pulls the market-wide super-candle pages, one request
// per calendar day between the watermark and now.
func (s *Service) mirrorMarketStats(ctx context.Context, job config.JobConf) (int, error) {
	var opts []moex.MarketOption
	if job.Board != "" {
		opts = append(opts, moex.WithMarketBoard(job.Board))
	}
	market, err := moex.NewMarket(s.deps.Client, job.Market, opts...)
	if err != nil {
		return 0, err
	}
	mark, err := s.deps.Stats.LatestTS(ctx, market.Name(), "")
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	now := time.Now()
	from, _ := s.window(mark, now)

	written := 0
	for day := dateOnly(from); !day.After(now); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		batch, err := market.TradeStats(fetchCtx, moex.StatsQuery{Date: day})
		cancel()
		if err != nil {
			return written, fmt.Errorf("tradestats %s: %w", day.Format(dateLayout), err)
		}
		n, err := s.deps.Stats.SaveBatch(ctx, market.Name(), batch)
		written += n
		if err != nil {
			return written, fmt.Errorf("save %s: %w", day.Format(dateLayout), err)
		}
	}
	return written, nil
}

// resolveTicker resolves an instrument against the listing once per
// process; later runs reuse the resolved facade.
func (s *Service) resolveTicker(ctx context.Context, job config.JobConf, secid string) (*moex.Ticker, error) {
	key := job.Market + ":" + secid
	s.mu.Lock()
	tk := s.tickers[key]
	s.mu.Unlock()
	if tk != nil {
		return tk, nil
	}

	var opts []moex.TickerOption
	if job.Board != "" {
		opts = append(opts, moex.WithTickerBoard(job.Board))
	}
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	resolved, err := moex.NewTicker(resolveCtx, s.deps.Client, secid, opts...)
	cancel()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tickers[key] = resolved
	s.mu.Unlock()
	return resolved, nil
}

// window expands a watermark into a fetch range. An empty mirror reaches
// back by the configured backfill.
func (s *Service) window(mark, now time.Time) (time.Time, time.Time) {
	if mark.IsZero() {
		return now.Add(-s.cfg.Backfill()), now
	}
	return mark, now
}

func (s *Service) record(ctx context.Context, job config.JobConf, metric, runID string, started time.Time, rows int, runErr error) {
	elapsed := time.Since(started).Milliseconds()
	rec := &journal.RunRecord{
		Timestamp: started,
		RunID:     runID,
		Market:    job.Market,
		Metric:    metric,
		Tickers:   job.Tickers,
		Rows:      rows,
		ElapsedMS: elapsed,
		Success:   runErr == nil,
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}
	if _, err := s.deps.Journal.WriteRun(rec); err != nil {
		logx.WithContext(ctx).Errorf("ingest: journal market=%s metric=%s err=%v", job.Market, metric, err)
	}

	if s.deps.Runs == nil {
		return
	}
	row := &model.IngestRuns{
		RunId:       runID,
		Market:      job.Market,
		Metric:      metric,
		Tickers:     strings.Join(job.Tickers, ","),
		RowsWritten: int64(rows),
		ElapsedMs:   elapsed,
		Success:     runErr == nil,
		StartedAt:   started,
	}
	if runErr != nil {
		row.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}
	if _, err := s.deps.Runs.Insert(ctx, row); err != nil {
		logx.WithContext(ctx).Errorf("ingest: run log market=%s metric=%s err=%v", job.Market, metric, err)
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
