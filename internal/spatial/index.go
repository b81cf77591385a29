package spatial

import (
	"math"
	"sort"
)

// maxCellsPerPoly：单个面登记的网格单元上限，超出时登记到全局桶
const maxCellsPerPoly = 256

type polyRef struct {
	owner int
	poly  int
}

// 文档注释：面要素的 geohash 网格索引
// 背景：点面连接时先按单元取候选，再做精确判定；避免逐点扫描全部多边形。
// 约束：只读结构，构建后可并发查询；候选按登记顺序（owner 升序）返回以保证“先到先得”的确定性。
type Index struct {
	precision int
	cells     map[string][]polyRef
	global    []polyRef
	owners    [][]Polygon
}

// NewIndex：按所属顺序登记面集合；owner 即 groups 下标
func NewIndex(groups [][]Polygon) *Index {
	idx := &Index{cells: make(map[string][]polyRef), owners: groups}
	idx.precision = choosePrecision(groups)
	cw, ch := geohashCellSize(idx.precision)
	for o, polys := range groups {
		for p, poly := range polys {
			ref := polyRef{owner: o, poly: p}
			b := poly.BBox
			if math.IsInf(b[0], 0) {
				continue
			}
			x0 := math.Floor((b[0] + 180) / cw)
			x1 := math.Floor((b[2] + 180) / cw)
			y0 := math.Floor((b[1] + 90) / ch)
			y1 := math.Floor((b[3] + 90) / ch)
			if (x1-x0+1)*(y1-y0+1) > maxCellsPerPoly {
				idx.global = append(idx.global, ref)
				continue
			}
			for x := x0; x <= x1; x++ {
				for y := y0; y <= y1; y++ {
					key := encodeGeohash(-90+(y+0.5)*ch, -180+(x+0.5)*cw, idx.precision)
					idx.cells[key] = append(idx.cells[key], ref)
				}
			}
		}
	}
	return idx
}

// choosePrecision：取单元宽度不小于面包围盒宽度中位数的最细精度
func choosePrecision(groups [][]Polygon) int {
	var widths []float64
	for _, polys := range groups {
		for _, p := range polys {
			if w := p.BBox[2] - p.BBox[0]; w > 0 && !math.IsInf(w, 0) {
				widths = append(widths, w)
			}
		}
	}
	if len(widths) == 0 {
		return 1
	}
	sort.Float64s(widths)
	median := widths[len(widths)/2]
	prec := 1
	for p := 1; p <= 8; p++ {
		w, _ := geohashCellSize(p)
		if w < median {
			break
		}
		prec = p
	}
	return prec
}

// Locate：返回包含点的第一个 owner（严格内部）；未命中返回 -1
func (idx *Index) Locate(pt Point) int {
	key := encodeGeohash(pt.Lat, pt.Lon, idx.precision)
	cands := append(append([]polyRef(nil), idx.cells[key]...), idx.global...)
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].owner != cands[j].owner {
			return cands[i].owner < cands[j].owner
		}
		return cands[i].poly < cands[j].poly
	})
	for _, c := range cands {
		if Within(pt, idx.owners[c.owner][c.poly]) {
			return c.owner
		}
	}
	return -1
}
