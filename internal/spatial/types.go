package spatial

import (
	"math"
	"sort"
)

// 文档注释：边界图层的最小数据结构
// 背景：统一承载 GeoJSON 与 Shapefile 两种来源的要素；属性一律以字符串保存，便于作为连接键与筛选项。
// 约束：多面与洞以环列表表达，第一环为外环，其余为洞；坐标在重投影之前保持源坐标系。
type Feature struct {
	Index int
	Attrs map[string]string
	Polys []Polygon
}

// Polygon：第一环是外环，其后为洞
type Polygon struct {
	Rings [][]Point
	BBox  [4]float64 // minLon, minLat, maxLon, maxLat
}

// Point：经纬度坐标；重投影前 Lon/Lat 分别承载源坐标系的 X/Y
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Layer：一次上传得到的图层
type Layer struct {
	Features   []Feature
	Attributes []string
	CRS        string
	// Skipped：空几何或非面要素的数量
	Skipped int
}

// AttrValues：指定属性在全部要素中的去重取值（排序，忽略空串）
func (l *Layer) AttrValues(attr string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range l.Features {
		v := f.Attrs[attr]
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// HasAttr：图层是否包含指定属性名
func (l *Layer) HasAttr(name string) bool {
	for _, a := range l.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Clone：深拷贝图层；重投影与筛选都在副本上进行
func (l *Layer) Clone() *Layer {
	out := &Layer{CRS: l.CRS, Skipped: l.Skipped}
	out.Attributes = append([]string(nil), l.Attributes...)
	out.Features = make([]Feature, len(l.Features))
	for i, f := range l.Features {
		attrs := make(map[string]string, len(f.Attrs))
		for k, v := range f.Attrs {
			attrs[k] = v
		}
		polys := make([]Polygon, len(f.Polys))
		for j, p := range f.Polys {
			rings := make([][]Point, len(p.Rings))
			for k, r := range p.Rings {
				rings[k] = append([]Point(nil), r...)
			}
			polys[j] = Polygon{Rings: rings, BBox: p.BBox}
		}
		out.Features[i] = Feature{Index: f.Index, Attrs: attrs, Polys: polys}
	}
	return out
}

// BBox：图层整体包围盒；空图层返回 ok=false
func (l *Layer) BBox() ([4]float64, bool) {
	b := emptyBBox()
	ok := false
	for _, f := range l.Features {
		for _, p := range f.Polys {
			b = unionBBox(b, p.BBox)
			ok = true
		}
	}
	return b, ok
}

func unionBBox(a, b [4]float64) [4]float64 {
	if b[0] < a[0] {
		a[0] = b[0]
	}
	if b[1] < a[1] {
		a[1] = b[1]
	}
	if b[2] > a[2] {
		a[2] = b[2]
	}
	if b[3] > a[3] {
		a[3] = b[3]
	}
	return a
}

// UnionBBox：合并一组面的包围盒
func UnionBBox(polys []Polygon) [4]float64 {
	b := emptyBBox()
	for _, p := range polys {
		b = unionBBox(b, p.BBox)
	}
	return b
}

func emptyBBox() [4]float64 {
	return [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}
