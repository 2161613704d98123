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
	ingestRunsFieldNames        = builder.RawFieldNames(&IngestRuns{}, true)
	ingestRunsRows              = strings.Join(ingestRunsFieldNames, ",")
	ingestRunsRowsExpectAutoSet = strings.Join(stringx.Remove(ingestRunsFieldNames, "id", "created_at"), ",")
)

type (
	// IngestRunsModel records one row per mirror job run. Rows are
	// append-only and never cached.
	IngestRunsModel interface {
		Insert(ctx context.Context, data *IngestRuns) (sql.Result, error)
		RecentByMarket(ctx context.Context, market string, limit int) ([]*IngestRuns, error)
	}

	defaultIngestRunsModel struct {
		sqlc.CachedConn
		table string
	}

	// IngestRuns maps one row of the ingest_runs table.
	IngestRuns struct {
		Id           int64          `db:"id"`
		RunId        string         `db:"run_id"`
		Market       string         `db:"market"`
		Metric       string         `db:"metric"`
		Tickers      string         `db:"tickers"`
		RowsWritten  int64          `db:"rows_written"`
		ElapsedMs    int64          `db:"elapsed_ms"`
		Success      bool           `db:"success"`
		ErrorMessage sql.NullString `db:"error_message"`
		StartedAt    time.Time      `db:"started_at"`
		CreatedAt    time.Time      `db:"created_at"`
	}
)

// NewIngestRunsModel returns a model for the ingest_runs table.
func NewIngestRunsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) IngestRunsModel {
	return &defaultIngestRunsModel{
		CachedConn: sqlc.NewConn(conn, c, opts...),
		table:      `"public"."ingest_runs"`,
	}
}

func (m *defaultIngestRunsModel) Insert(ctx context.Context, data *IngestRuns) (sql.Result, error) {
	query := fmt.Sprintf(`insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, m.table, ingestRunsRowsExpectAutoSet)
	return m.ExecNoCacheCtx(ctx, query, data.RunId, data.Market, data.Metric, data.Tickers,
		data.RowsWritten, data.ElapsedMs, data.Success, data.ErrorMessage, data.StartedAt)
}

// RecentByMarket returns run records ordered by start time descending.
func (m *defaultIngestRunsModel) RecentByMarket(ctx context.Context, market string, limit int) ([]*IngestRuns, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`select %s from %s where market = $1 order by started_at desc limit $2`, ingestRunsRows, m.table)
	var resp []*IngestRuns
	if err := m.QueryRowsNoCacheCtx(ctx, &resp, query, market, limit); err != nil {
		return nil, err
	}
	return resp, nil
}
