package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"algopack-api/internal/config"
	"algopack-api/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded
// daemon config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.HasPostgres())),
		fmt.Sprintf("Redis: %s", presence(cfg.HasRedis())),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		sectionLine("ISS config", cfg.ISS),
		fmt.Sprintf("Ingest: every %s, concurrency %d, backfill %dd",
			cfg.Ingest.Interval(), cfg.Ingest.Concurrency, cfg.Ingest.BackfillDays),
		fmt.Sprintf("Journal: %s", cfg.Ingest.JournalDir),
		fmt.Sprintf("Jobs: %s", jobSummary(cfg.Ingest.Jobs)),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func jobSummary(jobs []config.JobConf) string {
	if len(jobs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		scope := "market-wide"
		if len(job.Tickers) > 0 {
			scope = fmt.Sprintf("%d tickers", len(job.Tickers))
		}
		parts = append(parts, fmt.Sprintf("%s (%s: %s)", job.Market, scope, strings.Join(job.Metrics, "+")))
	}
	return strings.Join(parts, ", ")
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: environment", name)
	}
}
