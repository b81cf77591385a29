// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"salesmap/internal/api"
	"salesmap/internal/config"
	"salesmap/internal/logger"
	"salesmap/internal/metrics"
	"salesmap/internal/middleware"
	"salesmap/internal/migrate"
	"salesmap/internal/session"
	"salesmap/internal/store"
	"salesmap/internal/utils"
	"salesmap/internal/version"
)

func main() {
	config.LoadEnvFiles()
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.Load()
	l.Debug("config_api_base", "base", cfg.APIBase)
	l.Debug("config_ui_dir", "dir", cfg.UIDist)

	// 背景：使用统计为可选功能；数据库不可用时服务照常运行，只是不记录
	var st *store.Store
	if cfg.StatsEnable {
		db, err := utils.OpenPostgres(cfg)
		if err != nil {
			l.Error("db_open_error", "err", err)
		} else if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			_ = db.Close()
		} else {
			l.Info("db_open_ok")
			st = store.AttachDB(db)
			defer func(db *sql.DB) { _ = db.Close() }(db)
		}
	} else {
		l.Info("stats_disabled")
	}

	ttl := time.Duration(cfg.SessionTTLSec) * time.Second
	var sessions session.Store
	switch cfg.SessionBackend {
	case "redis":
		rc := utils.OpenRedis(cfg)
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
			os.Exit(1)
		}
		l.Info("redis_ping_ok")
		defer rc.Close()
		sessions = session.NewRedisStore(rc, ttl)
	default:
		sessions = session.NewMemoryStore(cfg.SessionCapacity, ttl)
	}
	l.Info("session_backend", "backend", cfg.SessionBackend, "ttl_s", cfg.SessionTTLSec)

	mux := http.NewServeMux()
	// 文档注释：构建路由
	apiMux := api.BuildRoutes(api.Deps{Config: cfg, Sessions: sessions, Stats: st})
	apiBase := cfg.APIBase
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	fs := http.FileServer(http.Dir(cfg.UIDist))
	mux.Handle("/", fs)

	// NOTE: 向前端暴露 API 基础路径与渲染参数，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		var b strings.Builder
		b.WriteString("window.__API_BASE__='" + apiBase + "'\n")
		b.WriteString("window.__DEFAULT_PALETTE__='" + cfg.Pipeline.Palette + "'\n")
		b.WriteString("window.__COMMIT_SHA__='" + version.Commit + "'\n")
		_, _ = w.Write([]byte(b.String()))
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, middleware.Options{
		RateLimitEnabled: cfg.RateLimitEnabled,
		RateLimitQPS:     cfg.RateLimitQPS,
		UploadMaxBytes:   int64(cfg.UploadMaxMB) << 20,
	})
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		_ = s.Shutdown(ctx)
	}()

	var err error
	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "salesmap.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}
