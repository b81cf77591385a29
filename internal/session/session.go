// 包 session：一次编辑会话的上传数据与视图参数，支持进程内与 Redis 两种后端
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"salesmap/internal/choropleth"
	"salesmap/internal/spatial"
)

// ErrNotFound：会话不存在或已过期
var ErrNotFound = errors.New("session not found")

// 文档注释：会话
// 背景：点表与边界图层各上传一次，之后每次交互只改 View 并重新计算；LastBreaks 保存最近一次有效的手动断点。
// 约束：Points 与 Layer 视为不可变，更新时整体替换；Store.Get 返回的是浅拷贝。
type Session struct {
	ID          string                   `json:"id"`
	PointsFile  string                   `json:"points_file,omitempty"`
	Points      []choropleth.PointRecord `json:"points,omitempty"`
	PointReport *choropleth.PointReport  `json:"point_report,omitempty"`
	RegionsFile string                   `json:"regions_file,omitempty"`
	Layer       *spatial.Layer           `json:"layer,omitempty"`
	View        choropleth.View          `json:"view"`
	LastBreaks  []float64                `json:"last_breaks,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// New：以随机 UUID 创建空会话
func New() *Session {
	now := time.Now().UTC()
	return &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// Ready：点表与边界图层是否都已上传
func (s *Session) Ready() bool { return len(s.Points) > 0 && s.Layer != nil }

// Store：会话存储
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// ValidID：会话 ID 必须是合法 UUID，避免任意字符串进入存储键
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
