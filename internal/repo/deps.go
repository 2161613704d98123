package repo

import (
	"errors"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cacheutil "algopack-api/internal/cache"
	"algopack-api/internal/model"
)

// Dependencies bundles the table models and shared infrastructure required
// by repository implementations.
type Dependencies struct {
	DBConn sqlx.SqlConn
	Store  *cacheutil.Store
	TTL    cacheutil.TTLSet

	CandlesModel    model.CandlesModel
	TradeStatsModel model.TradeStatsModel
}

// Set exposes strongly typed repositories to application logic.
type Set struct {
	Candles    CandlesRepo
	TradeStats TradeStatsRepo
}

// New constructs the repository set, validating required dependencies.
func New(deps Dependencies) (*Set, error) {
	if deps.DBConn == nil {
		return nil, errors.New("repo: missing DBConn dependency")
	}
	if deps.CandlesModel == nil {
		return nil, errors.New("repo: missing CandlesModel dependency")
	}
	if deps.TradeStatsModel == nil {
		return nil, errors.New("repo: missing TradeStatsModel dependency")
	}

	return &Set{
		Candles:    newCandlesRepo(deps),
		TradeStats: newTradeStatsRepo(deps),
	}, nil
}
