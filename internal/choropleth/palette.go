package choropleth

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
)

// reversedSuffix：名称后缀，表示反转色带
const reversedSuffix = "_r"

// Palette：按 [0,1] 连续采样的色带
type Palette struct {
	Name   string
	Colors []color.NRGBA
}

// 文档注释：按名称查找色带
// 背景：ColorBrewer 色带取其最多分级的版本作为控制点；另提供 moreland 感知均匀色带。
// 约束：名称区分大小写；"_r" 后缀表示反转；未知名称返回 ErrUnknownPalette。
func LookupPalette(name string) (*Palette, error) {
	base, reversed := strings.CutSuffix(name, reversedSuffix)
	cs, ok := paletteColors(base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, name)
	}
	if reversed {
		for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
			cs[i], cs[j] = cs[j], cs[i]
		}
	}
	return &Palette{Name: name, Colors: cs}, nil
}

func paletteColors(name string) ([]color.NRGBA, bool) {
	switch name {
	case "Kindlmann":
		return sampleMoreland(moreland.Kindlmann())
	case "ExtendedKindlmann":
		return sampleMoreland(moreland.ExtendedKindlmann())
	case "BlackBody":
		return sampleMoreland(moreland.BlackBody())
	}
	var classes []int
	var get func(n int) []color.Color
	if p, ok := brewer.SequentialPalettes[name]; ok {
		for n := range p {
			classes = append(classes, n)
		}
		get = func(n int) []color.Color { return p[n].Colors() }
	} else if p, ok := brewer.DivergingPalettes[name]; ok {
		for n := range p {
			classes = append(classes, n)
		}
		get = func(n int) []color.Color { return p[n].Colors() }
	} else if p, ok := brewer.QualitativePalettes[name]; ok {
		for n := range p {
			classes = append(classes, n)
		}
		get = func(n int) []color.Color { return p[n].Colors() }
	}
	if len(classes) == 0 {
		return nil, false
	}
	sort.Ints(classes)
	src := get(classes[len(classes)-1])
	out := make([]color.NRGBA, len(src))
	for i, c := range src {
		out[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	return out, true
}

type colorMapper interface {
	SetMin(float64)
	SetMax(float64)
	At(float64) (color.Color, error)
}

func sampleMoreland(cm colorMapper) ([]color.NRGBA, bool) {
	const n = 9
	cm.SetMin(0)
	cm.SetMax(1)
	out := make([]color.NRGBA, 0, n)
	for i := 0; i < n; i++ {
		c, err := cm.At(float64(i) / (n - 1))
		if err != nil {
			return nil, false
		}
		out = append(out, color.NRGBAModel.Convert(c).(color.NRGBA))
	}
	return out, true
}

// PaletteNames：全部可用色带名称（含反转版本），排序
func PaletteNames() []string {
	var names []string
	for n := range brewer.SequentialPalettes {
		names = append(names, n)
	}
	for n := range brewer.DivergingPalettes {
		names = append(names, n)
	}
	for n := range brewer.QualitativePalettes {
		names = append(names, n)
	}
	names = append(names, "Kindlmann", "ExtendedKindlmann", "BlackBody")
	sort.Strings(names)
	out := make([]string, 0, 2*len(names))
	for _, n := range names {
		out = append(out, n, n+reversedSuffix)
	}
	return out
}

// Sample：在 t∈[0,1] 处线性插值取色；越界截断
func (p *Palette) Sample(t float64) color.NRGBA {
	n := len(p.Colors)
	if n == 0 {
		return color.NRGBA{A: 255}
	}
	if n == 1 || math.IsNaN(t) {
		return p.Colors[0]
	}
	t = math.Min(math.Max(t, 0), 1)
	pos := t * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return p.Colors[n-1]
	}
	f := pos - float64(i)
	a, b := p.Colors[i], p.Colors[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f)) }
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: lerp(a.A, b.A)}
}

// Hex：#rrggbb
func Hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex：解析 #rgb / #rrggbb
func ParseHex(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
