package choropleth

import (
	"math"
	"sort"

	"github.com/dustin/go-humanize"

	"salesmap/internal/spatial"
)

// TopN：统计面板中排名区域数
const TopN = 10

// RankedRegion：排名项
type RankedRegion struct {
	Name   string  `json:"name"`
	Parent string  `json:"parent,omitempty"`
	Total  float64 `json:"total"`
	Label  string  `json:"label"`
}

// Stats：统计面板
type Stats struct {
	Total          float64        `json:"total"`
	TotalLabel     string         `json:"total_label"`
	Regions        int            `json:"regions"`
	RegionsNoData  int            `json:"regions_no_data"`
	PointsMatched  int            `json:"points_matched"`
	PointsDropped  int            `json:"points_dropped"`
	DroppedMeasure float64        `json:"dropped_measure"`
	Top            []RankedRegion `json:"top"`
	Center         spatial.Point  `json:"center"`
	BBox           [4]float64     `json:"bbox"`
}

// 文档注释：汇总统计
// 背景：总额、前十区域与地图中心（各区域质心均值，用于自动缩放定位）。
// 约束：排名按汇总降序，同值按名称升序；总额四舍五入到整数后加千分位。
func ComputeStats(agg *Aggregation) Stats {
	st := Stats{
		Regions:        len(agg.Regions),
		PointsMatched:  agg.Matched,
		PointsDropped:  agg.Dropped,
		DroppedMeasure: agg.DroppedMeasure,
	}
	ranked := make([]RankedRegion, 0, len(agg.Regions))
	var polys []spatial.Polygon
	var cx, cy float64
	for _, r := range agg.Regions {
		st.Total += r.Total
		if r.Total == 0 {
			st.RegionsNoData++
		}
		ranked = append(ranked, RankedRegion{Name: r.Name, Parent: r.Parent, Total: r.Total, Label: FormatNumber(r.Total)})
		cx += r.Centroid.Lon
		cy += r.Centroid.Lat
		polys = append(polys, r.Polys...)
	}
	st.TotalLabel = humanize.Comma(int64(math.Round(st.Total)))
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	st.Top = ranked
	if n := len(agg.Regions); n > 0 {
		st.Center = spatial.Point{Lon: cx / float64(n), Lat: cy / float64(n)}
		st.BBox = spatial.UnionBBox(polys)
	}
	return st
}
