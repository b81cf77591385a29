// 包 render：把管线结果输出为交互地图负载（GeoJSON）与静态图片
package render

import (
	"encoding/json"
	"io"

	"salesmap/internal/choropleth"
	"salesmap/internal/spatial"
)

// Style：渲染样式参数
type Style struct {
	FillOpacity float64
	LineOpacity float64
}

// DefaultStyle：填充 0.7，描边 0.2
var DefaultStyle = Style{FillOpacity: 0.7, LineOpacity: 0.2}

// Geometry：GeoJSON 几何，统一输出为 MultiPolygon
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates [][][][]float64 `json:"coordinates"`
}

// FeatureProps：每个区域的属性
type FeatureProps struct {
	Region     string  `json:"region"`
	Parent     string  `json:"parent,omitempty"`
	Total      float64 `json:"total"`
	TotalLabel string  `json:"total_label"`
	Fill       string  `json:"fill"`
	Bucket     int     `json:"bucket"`
}

// Feature：GeoJSON 要素
type Feature struct {
	Type       string       `json:"type"`
	Geometry   Geometry     `json:"geometry"`
	Properties FeatureProps `json:"properties"`
}

// 文档注释：交互地图负载
// 背景：前端直接把本结构当作 FeatureCollection 加载，其余字段驱动图例、统计面板与自动缩放。
// 约束：Breaks 为 nil 表示连续色阶；Bucket 为 -1 表示无数据或连续色阶。
type MapPayload struct {
	Type           string               `json:"type"`
	Features       []Feature            `json:"features"`
	Legend         choropleth.Legend    `json:"legend"`
	Stats          choropleth.Stats     `json:"stats"`
	Center         spatial.Point        `json:"center"`
	BBox           [4]float64           `json:"bbox"`
	Breaks         []float64            `json:"breaks"`
	Warnings       []choropleth.Warning `json:"warnings"`
	RegionOptions  []string             `json:"region_options"`
	SelectedParent string               `json:"selected_parent"`
	View           choropleth.View      `json:"view"`
	FillOpacity    float64              `json:"fill_opacity"`
	LineOpacity    float64              `json:"line_opacity"`
}

// BuildMap：由管线结果构建交互地图负载
func BuildMap(res *choropleth.Result, st Style) *MapPayload {
	out := &MapPayload{
		Type:        "FeatureCollection",
		Features:    make([]Feature, 0, len(res.Aggregation.Regions)),
		Legend:      res.Legend,
		Stats:       res.Stats,
		Center:      res.Stats.Center,
		BBox:        res.Stats.BBox,
		Warnings:    res.Warnings,
		View:        res.View,
		FillOpacity: st.FillOpacity,
		LineOpacity: st.LineOpacity,
	}
	if out.Warnings == nil {
		out.Warnings = []choropleth.Warning{}
	}
	if len(res.Scale.Breaks) > 0 {
		out.Breaks = append([]float64(nil), res.Scale.Breaks...)
	}
	if res.Normalized != nil {
		out.RegionOptions = res.Normalized.RegionOptions
		out.SelectedParent = res.Normalized.SelectedParent
	}
	if out.RegionOptions == nil {
		out.RegionOptions = []string{}
	}
	for _, r := range res.Aggregation.Regions {
		out.Features = append(out.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "MultiPolygon", Coordinates: spatial.Coordinates(r.Polys)},
			Properties: FeatureProps{
				Region:     r.Name,
				Parent:     r.Parent,
				Total:      r.Total,
				TotalLabel: choropleth.FormatNumber(r.Total),
				Fill:       choropleth.Hex(res.Scale.ColorFor(r.Total)),
				Bucket:     res.Scale.Bucket(r.Total),
			},
		})
	}
	return out
}

// WriteMap：以 JSON 写出地图负载
func WriteMap(w io.Writer, res *choropleth.Result, st Style) error {
	return json.NewEncoder(w).Encode(BuildMap(res, st))
}
