// 包 store: 使用统计的数据访问层（PostgreSQL），记录渲染、导出与上传次数
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"salesmap/internal/logger"
)

// Store: 数据库访问入口，持有连接池并提供统计读写
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Kind: 计数类别
type Kind string

const (
	KindRender Kind = "render"
	KindExport Kind = "export"
	KindUpload Kind = "upload"
)

// column: 类别到列名的固定映射，列名不来自外部输入
func (k Kind) column() (string, error) {
	switch k {
	case KindRender:
		return "renders", nil
	case KindExport:
		return "exports", nil
	case KindUpload:
		return "uploads", nil
	}
	return "", fmt.Errorf("unknown stats kind %q", string(k))
}

// 文档注释：递增累计与当日计数
// 背景：每次地图渲染、图片导出与文件上传成功后调用；统计失败不影响主流程，由调用方决定是否记录日志。
func (s *Store) Incr(ctx context.Context, kind Kind) error {
	col, err := kind.column()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE _render_stats_total SET "+col+"="+col+"+1 WHERE id=1"); err != nil {
		return err
	}
	q := "INSERT INTO _render_stats_daily(day, " + col + ") VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET " + col + "=_render_stats_daily." + col + "+1"
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return err
	}
	logger.L().Debug("stats_incr", "kind", string(kind))
	return nil
}

// Totals: 统计返回结构，包含累计与当日次数
type Totals struct {
	Renders      int64 `json:"renders"`
	Exports      int64 `json:"exports"`
	Uploads      int64 `json:"uploads"`
	RendersToday int64 `json:"renders_today"`
	ExportsToday int64 `json:"exports_today"`
	UploadsToday int64 `json:"uploads_today"`
}

// GetTotals: 读取累计与当日次数；当日尚无记录时按 0 返回
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT renders, exports, uploads FROM _render_stats_total WHERE id=1")
	if err := row.Scan(&t.Renders, &t.Exports, &t.Uploads); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	row2 := s.db.QueryRowContext(ctx, "SELECT renders, exports, uploads FROM _render_stats_daily WHERE day=current_date")
	if err := row2.Scan(&t.RendersToday, &t.ExportsToday, &t.UploadsToday); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	logger.L().Debug("stats_totals", "renders", t.Renders, "exports", t.Exports)
	return &t, nil
}

// 文档注释：清理保留窗口之外的日计数
// 约束：keepDays<=0 视为不清理；累计表不受影响。
func (s *Store) PruneDaily(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM _render_stats_daily WHERE day < current_date - $1::int", keepDays)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	logger.L().Debug("stats_prune", "keep_days", keepDays, "deleted", n)
	return n, nil
}
