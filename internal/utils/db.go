package utils

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"salesmap/internal/config"
	"salesmap/internal/logger"
)

// OpenPostgres：按配置打开统计库连接池并探活
// 约束：连接池上限取 PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS；探活超时 5 秒。
func OpenPostgres(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.PGMaxOpenConns)
	db.SetMaxIdleConns(cfg.PGMaxIdleConns)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L().Debug("pg_open", "host", cfg.PGHost, "db", cfg.PGDB)
	return db, nil
}
