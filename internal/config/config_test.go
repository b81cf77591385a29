package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(kv map[string]any) *viper.Viper {
	v := withDefaults(viper.New())
	for k, val := range kv {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	c := FromViper(newViper(nil))
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "/api", c.APIBase)
	assert.Equal(t, "memory", c.SessionBackend)
	assert.Equal(t, "Z", c.Pipeline.MeasureColumn)
	assert.Equal(t, "NAME_3", c.Pipeline.KeyAttr)
	assert.Equal(t, "NAME_1", c.Pipeline.ParentAttr)
	assert.Equal(t, []float64{0, 20, 40, 60, 80, 100}, c.Pipeline.QuantileCuts)
	assert.InDelta(t, 0.7, c.Pipeline.FillOpacity, 1e-9)
	assert.False(t, c.StatsEnable)
}

func TestFromViperOverrides(t *testing.T) {
	c := FromViper(newViper(map[string]any{
		"API_BASE":        "/v1/",
		"SESSION_BACKEND": "Redis",
		"QUANTILE_CUTS":   "0, 25, 50, 75, 100",
		"RATE_LIMIT_QPS":  -3,
		"STATS_ENABLE":    "true",
	}))
	assert.Equal(t, "/v1", c.APIBase)
	assert.Equal(t, "redis", c.SessionBackend)
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, c.Pipeline.QuantileCuts)
	assert.Equal(t, 200, c.RateLimitQPS)
	assert.True(t, c.StatsEnable)
}

func TestFromViperBadCutsFallBack(t *testing.T) {
	c := FromViper(newViper(map[string]any{"QUANTILE_CUTS": "0,abc"}))
	assert.Equal(t, []float64{0, 20, 40, 60, 80, 100}, c.Pipeline.QuantileCuts)
}

func TestParseCuts(t *testing.T) {
	cuts, err := ParseCuts(" 10 ,90")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 90}, cuts)

	_, err = ParseCuts("101")
	assert.Error(t, err)

	cuts, err = ParseCuts("")
	require.NoError(t, err)
	assert.Nil(t, cuts)
}

func TestPostgresDSN(t *testing.T) {
	c := FromViper(newViper(map[string]any{"PG_PASSWORD": "pw", "PG_HOST": "db"}))
	assert.Equal(t, "postgres://postgres:pw@db:5432/salesmap?sslmode=disable", c.PostgresDSN())
	assert.Equal(t, "127.0.0.1:6379", c.RedisAddr())
}

func TestDefaultMatchesFromViper(t *testing.T) {
	assert.Equal(t, FromViper(newViper(nil)), Default())
}
