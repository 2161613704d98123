package svc

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cacheutil "algopack-api/internal/cache"
	"algopack-api/internal/config"
	"algopack-api/internal/model"
	"algopack-api/internal/repo"
	"algopack-api/pkg/iss"
	"algopack-api/pkg/journal"
)

// ServiceContext wires the ISS client, storage models and repositories
// shared by the ingest daemon.
type ServiceContext struct {
	Config *config.Config

	ISS *iss.Client

	// Storage stays nil when Postgres is not configured; mirror jobs
	// then refuse to start.
	DBConn          sqlx.SqlConn
	Redis           *redis.Client
	Store           *cacheutil.Store
	TTL             cacheutil.TTLSet
	CandlesModel    model.CandlesModel
	TradeStatsModel model.TradeStatsModel
	IngestRunsModel model.IngestRunsModel
	Repos           *repo.Set

	Journal *journal.Writer
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	issCfg, err := c.ISSConfig()
	if err != nil {
		return nil, fmt.Errorf("svc: iss config: %w", err)
	}

	svc := &ServiceContext{
		Config:  c,
		ISS:     iss.NewClientFromConfig(issCfg),
		TTL:     cacheutil.NewTTLSet(c.TTL),
		Journal: journal.NewWriter(c.Ingest.JournalDir),
	}

	if c.HasRedis() {
		svc.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Host,
			Username: c.Redis.User,
			Password: c.Redis.Pass,
		})
	}
	svc.Store = cacheutil.NewStore(svc.Redis)

	if c.HasPostgres() {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn

		// Validate guarantees Redis accompanies Postgres, so the cached
		// models always have a node to hang on to.
		cacheConf := cache.CacheConf{{RedisConf: c.Redis, Weight: 100}}
		svc.CandlesModel = model.NewCandlesModel(conn, cacheConf)
		svc.TradeStatsModel = model.NewTradeStatsModel(conn, cacheConf)
		svc.IngestRunsModel = model.NewIngestRunsModel(conn, cacheConf)

		repos, err := repo.New(repo.Dependencies{
			DBConn:          conn,
			Store:           svc.Store,
			TTL:             svc.TTL,
			CandlesModel:    svc.CandlesModel,
			TradeStatsModel: svc.TradeStatsModel,
		})
		if err != nil {
			return nil, fmt.Errorf("svc: build repositories: %w", err)
		}
		svc.Repos = repos
	}

	return svc, nil
}

// HasStorage reports whether the mirror tables are wired.
func (s *ServiceContext) HasStorage() bool {
	return s.Repos != nil
}
