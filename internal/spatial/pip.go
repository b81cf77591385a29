package spatial

import "math"

// edgeEps：判定“落在边界上”的容差（度）；约 1 厘米
const edgeEps = 1e-7

// 文档注释：点是否严格位于面内部（Even-Odd）
// 背景：与“within”语义一致，边界上的点不属于任何一侧的面，避免相邻区域重复计数。
// 约束：输入为经纬度坐标；外环命中且不在洞内视为命中；边界判定使用 edgeEps 容差。
func Within(pt Point, poly Polygon) bool {
	if len(poly.Rings) == 0 || !InBBox(pt, poly.BBox) {
		return false
	}
	for _, r := range poly.Rings {
		if onRingBoundary(pt, r) {
			return false
		}
	}
	if !pointInRing(pt, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if pointInRing(pt, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// WithinAny：点是否位于任一面内部
func WithinAny(pt Point, polys []Polygon) bool {
	for _, p := range polys {
		if Within(pt, p) {
			return true
		}
	}
	return false
}

// 射线法判定点是否在环内
func pointInRing(pt Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x := pt.Lon
	y := pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func onRingBoundary(pt Point, ring []Point) bool {
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(pt, ring[j], ring[i]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b Point) bool {
	if p.Lon < math.Min(a.Lon, b.Lon)-edgeEps || p.Lon > math.Max(a.Lon, b.Lon)+edgeEps ||
		p.Lat < math.Min(a.Lat, b.Lat)-edgeEps || p.Lat > math.Max(a.Lat, b.Lat)+edgeEps {
		return false
	}
	dx, dy := b.Lon-a.Lon, b.Lat-a.Lat
	l := math.Hypot(dx, dy)
	if l == 0 {
		return math.Hypot(p.Lon-a.Lon, p.Lat-a.Lat) <= edgeEps
	}
	cross := dx*(p.Lat-a.Lat) - dy*(p.Lon-a.Lon)
	return math.Abs(cross)/l <= edgeEps
}

// InBBox：快速包围盒过滤（闭区间）
func InBBox(pt Point, b [4]float64) bool {
	return pt.Lon >= b[0] && pt.Lon <= b[2] && pt.Lat >= b[1] && pt.Lat <= b[3]
}
