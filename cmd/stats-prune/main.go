package main

import (
	"context"
	"os"
	"time"

	"salesmap/internal/config"
	"salesmap/internal/logger"
	"salesmap/internal/store"
	"salesmap/internal/utils"
)

// 文档注释：使用统计日表保留窗口清理
// 背景：日计数只用于近期趋势；超出 STATS_KEEP_DAYS 的行删除，累计表保留。
// 约束：仅作用于 _render_stats_daily；适合由 cron 每日执行一次。
func main() {
	config.LoadEnvFiles()
	l := logger.Setup()
	cfg := config.Load()
	if cfg.StatsKeepDays <= 0 {
		l.Error("stats_keep_days_invalid", "value", cfg.StatsKeepDays)
		os.Exit(1)
	}
	db, err := utils.OpenPostgres(cfg)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := store.AttachDB(db).PruneDaily(ctx, cfg.StatsKeepDays)
	if err != nil {
		l.Error("stats_prune_error", "err", err)
		os.Exit(1)
	}
	l.Info("stats_prune_done", "keep_days", cfg.StatsKeepDays, "deleted", n)
}
