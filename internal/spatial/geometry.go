package spatial

import "math"

// ringArea：有向面积（鞋带公式）；逆时针为正
func ringArea(r []Point) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	s := 0.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		s += r[j].Lon*r[i].Lat - r[i].Lon*r[j].Lat
	}
	return s / 2
}

// 文档注释：面集合的面积加权质心
// 背景：用于地图自动居中与标注位置；在经纬度平面上计算，区域尺度下误差可忽略。
// 约束：洞按负面积扣除；总面积为零时退化为包围盒中心。
func Centroid(polys []Polygon) Point {
	var a, cx, cy float64
	for _, p := range polys {
		for i, r := range p.Rings {
			ra, rx, ry := ringMoments(r)
			// 外环与洞按绝对值计入，洞取负
			sign := 1.0
			if i > 0 {
				sign = -1.0
			}
			if ra < 0 {
				ra, rx, ry = -ra, -rx, -ry
			}
			a += sign * ra
			cx += sign * rx
			cy += sign * ry
		}
	}
	if a > 0 && !math.IsNaN(cx) && !math.IsNaN(cy) {
		return Point{Lon: cx / a, Lat: cy / a}
	}
	b := UnionBBox(polys)
	if math.IsInf(b[0], 0) {
		return Point{}
	}
	return Point{Lon: (b[0] + b[2]) / 2, Lat: (b[1] + b[3]) / 2}
}

// ringMoments：返回有向面积与一阶矩（已乘面积）
func ringMoments(r []Point) (area, mx, my float64) {
	n := len(r)
	if n < 3 {
		return 0, 0, 0
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		c := r[j].Lon*r[i].Lat - r[i].Lon*r[j].Lat
		area += c
		mx += (r[j].Lon + r[i].Lon) * c
		my += (r[j].Lat + r[i].Lat) * c
	}
	area /= 2
	mx /= 6
	my /= 6
	return area, mx, my
}

// Area：面集合的平面面积（平方度）
func Area(polys []Polygon) float64 {
	s := 0.0
	for _, p := range polys {
		for i, r := range p.Rings {
			a := math.Abs(ringArea(r))
			if i == 0 {
				s += a
			} else {
				s -= a
			}
		}
	}
	return s
}

// Oriented：返回外环逆时针、洞顺时针的副本，供按绕向区分洞的绘图后端使用
func Oriented(p Polygon) Polygon {
	out := Polygon{BBox: p.BBox, Rings: make([][]Point, len(p.Rings))}
	for i, r := range p.Rings {
		rr := append([]Point(nil), r...)
		a := ringArea(rr)
		if (i == 0 && a < 0) || (i > 0 && a > 0) {
			for l, k := 0, len(rr)-1; l < k; l, k = l+1, k-1 {
				rr[l], rr[k] = rr[k], rr[l]
			}
		}
		out.Rings[i] = rr
	}
	return out
}
