package migrate

import (
	"database/sql"

	"salesmap/internal/logger"
)

// Statements: 建表语句，按顺序执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _render_stats_total (
            id INT PRIMARY KEY,
            renders BIGINT NOT NULL DEFAULT 0,
            exports BIGINT NOT NULL DEFAULT 0,
            uploads BIGINT NOT NULL DEFAULT 0
        )`,
	`CREATE TABLE IF NOT EXISTS _render_stats_daily (
            day DATE PRIMARY KEY,
            renders BIGINT NOT NULL DEFAULT 0,
            exports BIGINT NOT NULL DEFAULT 0,
            uploads BIGINT NOT NULL DEFAULT 0
        )`,
	`INSERT INTO _render_stats_total(id, renders, exports, uploads)
         VALUES(1, 0, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
}

// 背景：首次运行自动创建统计表，保障后续计数写入
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
