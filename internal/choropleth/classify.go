package choropleth

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Mode：分级方式
type Mode string

const (
	ModeQuantile Mode = "quantile"
	ModeManual   Mode = "manual"
)

// MinBreaks：有效断点序列的最少点数（即至少三个分级）
const MinBreaks = 4

// DefaultCuts：默认分位点（百分数）
var DefaultCuts = []float64{0, 20, 40, 60, 80, 100}

// ParseMode：空串视为分位数模式
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeQuantile:
		return ModeQuantile, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Classification：分级结果；Breaks 为 nil 表示退回连续色阶
type Classification struct {
	Breaks   []float64
	Min      float64
	Max      float64
	Warnings []Warning
}

// Continuous：是否为连续色阶
func (c *Classification) Continuous() bool { return len(c.Breaks) == 0 }

// 文档注释：对区域汇总值分级
// 背景：分位数模式在 cuts 处取经验分位数；手动模式解析逗号分隔断点。两种模式都去重、排序，
// 并在数据最小/最大值未被覆盖时补到首尾，保证每个值都落在某个分级中。
// 约束：断点少于 MinBreaks 时退回连续色阶并附带警告；手动断点格式错误返回 *MalformedBreaksError，
// 由调用方保留上一次有效断点。同一输入重复调用结果一致。
func Classify(values []float64, mode Mode, manual string, cuts []float64) (*Classification, error) {
	c := &Classification{}
	if len(values) > 0 {
		c.Min, c.Max = lo.Min(values), lo.Max(values)
	}
	var raw []float64
	switch mode {
	case ModeQuantile, "":
		if len(values) == 0 {
			c.Warnings = append(c.Warnings, Warning{Kind: WarnDegenerate, Message: "no values to classify; using a continuous scale"})
			return c, nil
		}
		raw = QuantileBreaks(values, cuts)
	case ModeManual:
		parsed, err := ParseBreaks(manual)
		if err != nil {
			return nil, err
		}
		if parsed == nil {
			c.Warnings = append(c.Warnings, Warning{Kind: WarnDegenerate, Message: "no breakpoints entered; using a continuous scale"})
			return c, nil
		}
		raw = parsed
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	b := NormalizeBreaks(raw, values)
	if len(b) < MinBreaks {
		c.Warnings = append(c.Warnings, Warning{
			Kind:    WarnDegenerate,
			Message: fmt.Sprintf("only %d distinct breakpoints (need at least %d); using a continuous scale", len(b), MinBreaks),
		})
		return c, nil
	}
	c.Breaks = b
	return c, nil
}

// QuantileBreaks：在百分位 cuts 处取经验分位数（未去重）
func QuantileBreaks(values []float64, cuts []float64) []float64 {
	if len(cuts) == 0 {
		cuts = DefaultCuts
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make([]float64, 0, len(cuts))
	for _, p := range cuts {
		q := math.Min(math.Max(p/100, 0), 1)
		out = append(out, stat.Quantile(q, stat.Empirical, sorted, nil))
	}
	return out
}

// 文档注释：解析手动断点
// 约束：空串（或仅空白）返回 nil, nil；任一项为空、非数值或非有限值返回 *MalformedBreaksError。
func ParseBreaks(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	toks := strings.Split(s, ",")
	out := make([]float64, 0, len(toks))
	for _, tok := range toks {
		t := strings.TrimSpace(tok)
		f, err := strconv.ParseFloat(t, 64)
		if t == "" || err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &MalformedBreaksError{Input: s, Token: t}
		}
		out = append(out, f)
	}
	return out, nil
}

// NormalizeBreaks：去重排序并补齐数据最小/最大值
func NormalizeBreaks(raw []float64, values []float64) []float64 {
	b := lo.Uniq(raw)
	sort.Float64s(b)
	if len(values) == 0 || len(b) == 0 {
		return b
	}
	minV, maxV := lo.Min(values), lo.Max(values)
	if minV < b[0] {
		b = append([]float64{minV}, b...)
	}
	if maxV > b[len(b)-1] {
		b = append(b, maxV)
	}
	return b
}
