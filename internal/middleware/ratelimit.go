package middleware

import (
	"net/http"
	"sync"
	"time"

	"salesmap/internal/logger"
	"salesmap/internal/metrics"
)

// 文档注释：令牌桶限流（每秒）
// 背景：管线与导出均为 CPU 密集型，入口限速防止单实例被上传/渲染请求压垮。
// 约束：简化实现，不做排队，超限直接返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 1
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Options：入口中间件参数，由主入口从配置填充
type Options struct {
	RateLimitEnabled bool
	RateLimitQPS     int
	UploadMaxBytes   int64
}

// Wrap：组合请求体上限与可选限流
func Wrap(next http.Handler, opt Options) http.Handler {
	h := next
	if opt.UploadMaxBytes > 0 {
		h = LimitBody(h, opt.UploadMaxBytes)
	}
	if !opt.RateLimitEnabled {
		return h
	}
	tb := NewTokenBucket(opt.RateLimitQPS)
	logger.L().Info("rate_limit_enabled", "qps", opt.RateLimitQPS)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			metrics.RateLimitedTotal.Inc()
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// LimitBody：限制请求体大小；超限时读取方得到错误，由处理函数转换为 413
func LimitBody(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBytes {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
