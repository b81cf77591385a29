// 包 config：集中读取运行参数；.env 由 godotenv 注入环境变量，再经 viper 统一取值与默认值
package config

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 文档注释：进程级配置
// 背景：服务、离线渲染与维护工具共用同一组键；各模块只读取与自身相关的字段。
// 约束：所有键均可由环境变量覆盖；空值回退到 defaults 中的默认值。
type Config struct {
	Addr    string
	APIBase string
	UIDist  string

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string

	RateLimitEnabled bool
	RateLimitQPS     int
	UploadMaxMB      int

	SessionBackend  string
	SessionTTLSec   int
	SessionCapacity int

	RedisHost string
	RedisPort string
	RedisPass string
	RedisDB   int

	StatsEnable    bool
	StatsKeepDays  int
	PGHost         string
	PGPort         string
	PGUser         string
	PGPassword     string
	PGDB           string
	PGSSLMode      string
	PGMaxOpenConns int
	PGMaxIdleConns int

	Pipeline Pipeline
}

// Pipeline：数据管线相关的列名、属性名与配色参数
type Pipeline struct {
	LonColumn     string
	LatColumn     string
	MeasureColumn string
	ParentAttr    string
	KeyAttr       string
	Palette       string
	QuantileCuts  []float64
	NoDataColor   string
	FillOpacity   float64
	LineOpacity   float64
	ExportWidthPx int
}

var defaults = map[string]any{
	"ADDR":                  ":8080",
	"API_BASE":              "/api",
	"UI_DIST":               filepath.Join("ui", "dist"),
	"TLS_ENABLE":            false,
	"TLS_CERT_PATH":         filepath.Join("data", "certs", "server.crt"),
	"TLS_KEY_PATH":          filepath.Join("data", "certs", "server.key"),
	"RATE_LIMIT_ENABLED":    false,
	"RATE_LIMIT_QPS":        200,
	"UPLOAD_MAX_MB":         64,
	"SESSION_BACKEND":       "memory",
	"SESSION_TTL_S":         3600,
	"SESSION_CAPACITY":      256,
	"REDIS_HOST":            "127.0.0.1",
	"REDIS_PORT":            "6379",
	"REDIS_PASS":            "",
	"REDIS_DB":              0,
	"STATS_ENABLE":          false,
	"STATS_KEEP_DAYS":       90,
	"PG_HOST":               "localhost",
	"PG_PORT":               "5432",
	"PG_USER":               "postgres",
	"PG_PASSWORD":           "",
	"PG_DB":                 "salesmap",
	"PG_SSLMODE":            "disable",
	"PG_MAX_OPEN_CONNS":     10,
	"PG_MAX_IDLE_CONNS":     5,
	"POINTS_LON_COLUMN":     "longitude",
	"POINTS_LAT_COLUMN":     "latitude",
	"POINTS_MEASURE_COLUMN": "Z",
	"REGION_PARENT_ATTR":    "NAME_1",
	"REGION_KEY_ATTR":       "NAME_3",
	"DEFAULT_PALETTE":       "YlOrRd",
	"QUANTILE_CUTS":         "0,20,40,60,80,100",
	"NODATA_COLOR":          "#d9d9d9",
	"FILL_OPACITY":          0.7,
	"LINE_OPACITY":          0.2,
	"EXPORT_WIDTH_PX":       1200,
}

// LoadEnvFiles：按顺序加载 .env 与 data/env/.env；文件缺失时静默跳过
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// Load：从环境变量构建配置
// 背景：调用方先执行 LoadEnvFiles；这里仅负责取值、类型转换与默认值回退。
func Load() *Config {
	v := withDefaults(viper.New())
	v.AutomaticEnv()
	return FromViper(v)
}

// Default：只含默认值的配置，不读取环境变量
func Default() *Config { return FromViper(withDefaults(viper.New())) }

func withDefaults(v *viper.Viper) *viper.Viper {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// FromViper：从给定 viper 实例读取配置，便于测试时注入键值
func FromViper(v *viper.Viper) *Config {
	c := &Config{
		Addr:             v.GetString("ADDR"),
		APIBase:          strings.TrimRight(v.GetString("API_BASE"), "/"),
		UIDist:           v.GetString("UI_DIST"),
		TLSEnable:        v.GetBool("TLS_ENABLE"),
		TLSCertPath:      v.GetString("TLS_CERT_PATH"),
		TLSKeyPath:       v.GetString("TLS_KEY_PATH"),
		RateLimitEnabled: v.GetBool("RATE_LIMIT_ENABLED"),
		RateLimitQPS:     v.GetInt("RATE_LIMIT_QPS"),
		UploadMaxMB:      v.GetInt("UPLOAD_MAX_MB"),
		SessionBackend:   strings.ToLower(v.GetString("SESSION_BACKEND")),
		SessionTTLSec:    v.GetInt("SESSION_TTL_S"),
		SessionCapacity:  v.GetInt("SESSION_CAPACITY"),
		RedisHost:        v.GetString("REDIS_HOST"),
		RedisPort:        v.GetString("REDIS_PORT"),
		RedisPass:        v.GetString("REDIS_PASS"),
		RedisDB:          v.GetInt("REDIS_DB"),
		StatsEnable:      v.GetBool("STATS_ENABLE"),
		StatsKeepDays:    v.GetInt("STATS_KEEP_DAYS"),
		PGHost:           v.GetString("PG_HOST"),
		PGPort:           v.GetString("PG_PORT"),
		PGUser:           v.GetString("PG_USER"),
		PGPassword:       v.GetString("PG_PASSWORD"),
		PGDB:             v.GetString("PG_DB"),
		PGSSLMode:        v.GetString("PG_SSLMODE"),
		PGMaxOpenConns:   v.GetInt("PG_MAX_OPEN_CONNS"),
		PGMaxIdleConns:   v.GetInt("PG_MAX_IDLE_CONNS"),
		Pipeline: Pipeline{
			LonColumn:     v.GetString("POINTS_LON_COLUMN"),
			LatColumn:     v.GetString("POINTS_LAT_COLUMN"),
			MeasureColumn: v.GetString("POINTS_MEASURE_COLUMN"),
			ParentAttr:    v.GetString("REGION_PARENT_ATTR"),
			KeyAttr:       v.GetString("REGION_KEY_ATTR"),
			Palette:       v.GetString("DEFAULT_PALETTE"),
			NoDataColor:   v.GetString("NODATA_COLOR"),
			FillOpacity:   v.GetFloat64("FILL_OPACITY"),
			LineOpacity:   v.GetFloat64("LINE_OPACITY"),
			ExportWidthPx: v.GetInt("EXPORT_WIDTH_PX"),
		},
	}
	if c.APIBase == "" {
		c.APIBase = "/api"
	}
	if c.RateLimitQPS <= 0 {
		c.RateLimitQPS = 200
	}
	if c.UploadMaxMB <= 0 {
		c.UploadMaxMB = 64
	}
	if c.SessionTTLSec <= 0 {
		c.SessionTTLSec = 3600
	}
	if c.SessionCapacity <= 0 {
		c.SessionCapacity = 256
	}
	if c.RedisDB < 0 {
		c.RedisDB = 0
	}
	cuts, err := ParseCuts(v.GetString("QUANTILE_CUTS"))
	if err != nil || len(cuts) == 0 {
		cuts = []float64{0, 20, 40, 60, 80, 100}
	}
	c.Pipeline.QuantileCuts = cuts
	return c
}

// ParseCuts：解析逗号分隔的分位点（百分数 0..100）
// 约束：越界或非数字返回错误；空串返回 nil。
func ParseCuts(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []float64
	for _, tok := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > 100 {
			return nil, strconv.ErrRange
		}
		out = append(out, f)
	}
	return out, nil
}

// PostgresDSN：拼接 PostgreSQL 连接串
func (c *Config) PostgresDSN() string {
	dsn := "postgres://" + c.PGUser
	if c.PGPassword != "" {
		dsn += ":" + c.PGPassword
	}
	dsn += "@" + c.PGHost + ":" + c.PGPort + "/" + c.PGDB + "?sslmode=" + c.PGSSLMode
	return dsn
}

// RedisAddr：host:port
func (c *Config) RedisAddr() string { return c.RedisHost + ":" + c.RedisPort }
