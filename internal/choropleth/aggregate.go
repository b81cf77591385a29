package choropleth

import (
	"context"

	"salesmap/internal/spatial"
)

// AggregatedRegion：同名区域合并后的汇总
type AggregatedRegion struct {
	Name     string
	Parent   string
	Polys    []spatial.Polygon
	Attrs    map[string]string
	Total    float64
	Count    int
	Centroid spatial.Point
}

// Aggregation：空间汇总结果
type Aggregation struct {
	Regions        []AggregatedRegion
	Matched        int
	Dropped        int
	MatchedMeasure float64
	DroppedMeasure float64
}

// ctxCheckEvery：每处理多少个点检查一次取消
const ctxCheckEvery = 4096

// 文档注释：点面连接与按区汇总
// 背景：同名区域（如被拆成多个要素的同一地区）合并为一个汇总项，按首次出现的图层顺序排列。
// 约束：点须严格位于面内部，边界上的点不计入；多个区域都包含该点时取图层顺序靠前者，因此每个点至多计入一次；
// 未命中的点丢弃并计数；无点区域的汇总为 0。
func Aggregate(ctx context.Context, points []PointRecord, regions []RegionPolygon) (*Aggregation, error) {
	agg := &Aggregation{}
	byName := make(map[string]int)
	owner := make([]int, len(regions))
	for i, r := range regions {
		j, ok := byName[r.Name]
		if !ok {
			j = len(agg.Regions)
			byName[r.Name] = j
			agg.Regions = append(agg.Regions, AggregatedRegion{Name: r.Name, Parent: r.Parent, Attrs: r.Attrs})
		}
		agg.Regions[j].Polys = append(agg.Regions[j].Polys, r.Polys...)
		owner[i] = j
	}
	groups := make([][]spatial.Polygon, len(regions))
	for i, r := range regions {
		groups[i] = r.Polys
	}
	idx := spatial.NewIndex(groups)
	for i, p := range points {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hit := idx.Locate(spatial.Point{Lat: p.Lat, Lon: p.Lon})
		if hit < 0 {
			agg.Dropped++
			agg.DroppedMeasure += p.Measure
			continue
		}
		r := &agg.Regions[owner[hit]]
		r.Total += p.Measure
		r.Count++
		agg.Matched++
		agg.MatchedMeasure += p.Measure
	}
	for i := range agg.Regions {
		agg.Regions[i].Centroid = spatial.Centroid(agg.Regions[i].Polys)
	}
	return agg, nil
}

// Totals：按区域顺序取汇总值
func (a *Aggregation) Totals() []float64 {
	out := make([]float64, len(a.Regions))
	for i, r := range a.Regions {
		out[i] = r.Total
	}
	return out
}
