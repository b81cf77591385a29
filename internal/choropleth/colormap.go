package choropleth

import (
	"image/color"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
)

// DefaultNoData：无数据（汇总为 0）区域的填充色
var DefaultNoData = color.NRGBA{R: 0xd9, G: 0xd9, B: 0xd9, A: 0xff}

// 文档注释：色阶
// 背景：交互地图与静态导出都只通过 ColorFor 取色，保证同一数据两条路径颜色一致。
// 约束：Breaks 为空时为连续色阶，按 Min/Max 线性归一化；汇总为 0（或非有限值）的区域取 NoData。
type Scale struct {
	Palette *Palette
	Breaks  []float64
	Min     float64
	Max     float64
	NoData  color.NRGBA
}

// NewScale：由分级结果与色带构建色阶
func NewScale(p *Palette, c *Classification, noData color.NRGBA) *Scale {
	s := &Scale{Palette: p, Min: c.Min, Max: c.Max, NoData: noData}
	if len(c.Breaks) > 0 {
		s.Breaks = append([]float64(nil), c.Breaks...)
	}
	return s
}

// Buckets：分级数；连续色阶为 0
func (s *Scale) Buckets() int {
	if len(s.Breaks) < 2 {
		return 0
	}
	return len(s.Breaks) - 1
}

// Bucket：值所在分级下标；区间左闭右开，末级右闭；越界截断到首末级；连续色阶或无数据返回 -1
func (s *Scale) Bucket(v float64) int {
	n := s.Buckets()
	if n == 0 || isNoData(v) {
		return -1
	}
	// 第一个大于 v 的断点位置减一即为所在区间
	i := sort.SearchFloat64s(s.Breaks, math.Nextafter(v, math.Inf(1))) - 1
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}

// 文档注释：取色
// 约束：n 个分级时第 i 级取色带 i/(n-1) 处的颜色，只有一级时取 0.5；连续色阶取 (v-Min)/(Max-Min)，Max==Min 时取 0.5。
func (s *Scale) ColorFor(v float64) color.NRGBA {
	if isNoData(v) {
		return s.NoData
	}
	return s.Palette.Sample(s.Position(v))
}

// Position：值在色带上的采样位置 [0,1]
func (s *Scale) Position(v float64) float64 {
	if n := s.Buckets(); n > 0 {
		if n == 1 {
			return 0.5
		}
		return float64(s.Bucket(v)) / float64(n-1)
	}
	if s.Max == s.Min {
		return 0.5
	}
	return math.Min(math.Max((v-s.Min)/(s.Max-s.Min), 0), 1)
}

func isNoData(v float64) bool {
	return v == 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

// LegendEntry：图例项；连续色阶时 Lower==Upper 表示色标点
type LegendEntry struct {
	Color string  `json:"color"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Label string  `json:"label"`
}

// Legend：图例
type Legend struct {
	Continuous bool          `json:"continuous"`
	Palette    string        `json:"palette"`
	Entries    []LegendEntry `json:"entries"`
	NoData     LegendEntry   `json:"no_data"`
}

// continuousStops：连续色阶图例的色标点数
const continuousStops = 5

// 文档注释：生成图例
// 背景：分级时每级一项（取色与 ColorFor 相同）；连续色阶在 Min..Max 间均匀取色标点。
func (s *Scale) Legend() Legend {
	lg := Legend{Continuous: s.Buckets() == 0, Palette: s.Palette.Name}
	lg.NoData = LegendEntry{Color: Hex(s.NoData), Label: "No data"}
	if n := s.Buckets(); n > 0 {
		for i := 0; i < n; i++ {
			lower, upper := s.Breaks[i], s.Breaks[i+1]
			t := 0.5
			if n > 1 {
				t = float64(i) / float64(n-1)
			}
			label := FormatNumber(lower) + " - " + FormatNumber(upper)
			lg.Entries = append(lg.Entries, LegendEntry{Color: Hex(s.Palette.Sample(t)), Lower: lower, Upper: upper, Label: label})
		}
		return lg
	}
	for i := 0; i < continuousStops; i++ {
		t := float64(i) / float64(continuousStops-1)
		v := s.Min + t*(s.Max-s.Min)
		c := s.Palette.Sample(t)
		if s.Max == s.Min {
			c = s.Palette.Sample(0.5)
		}
		lg.Entries = append(lg.Entries, LegendEntry{Color: Hex(c), Lower: v, Upper: v, Label: FormatNumber(v)})
	}
	return lg
}

// FormatNumber：千分位格式；整数不带小数，其余保留两位
func FormatNumber(v float64) string {
	if v == math.Trunc(v) {
		return humanize.Commaf(v)
	}
	return humanize.CommafWithDigits(v, 2)
}
