package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrBadGeometry：几何结构无法解析（坐标非数值、环点数不足等）
var ErrBadGeometry = errors.New("bad geometry")

// 文档注释：读取 GeoJSON 边界图层
// 背景：兼容 FeatureCollection、单个 Feature 与裸几何；属性统一转为字符串供连接键与筛选使用。
// 约束：仅接受 Polygon/MultiPolygon；空几何计入 Skipped；其他几何类型与坏坐标返回 ErrBadGeometry。
func LoadGeoJSON(r io.Reader) (*Layer, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var gj map[string]any
	if err := json.Unmarshal(bs, &gj); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	crs, err := detectGeoJSONCRS(gj)
	if err != nil {
		return nil, err
	}
	l := &Layer{CRS: crs}
	attrSet := make(map[string]struct{})
	switch strings.ToLower(getStr(gj, "type")) {
	case "featurecollection":
		arr, _ := gj["features"].([]any)
		for _, it := range arr {
			f, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: feature %d is not an object", ErrBadGeometry, len(l.Features)+l.Skipped)
			}
			if err := addFeature(l, f, attrSet); err != nil {
				return nil, err
			}
		}
	case "feature":
		if err := addFeature(l, gj, attrSet); err != nil {
			return nil, err
		}
	case "polygon", "multipolygon":
		if err := addFeature(l, map[string]any{"geometry": gj}, attrSet); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("geojson: unsupported root type %q", getStr(gj, "type"))
	}
	for k := range attrSet {
		l.Attributes = append(l.Attributes, k)
	}
	sort.Strings(l.Attributes)
	return l, nil
}

func addFeature(l *Layer, f map[string]any, attrSet map[string]struct{}) error {
	idx := len(l.Features) + l.Skipped
	g, _ := f["geometry"].(map[string]any)
	if g == nil {
		l.Skipped++
		return nil
	}
	polys, err := polysFromGeometry(g)
	if err != nil {
		return fmt.Errorf("feature %d: %w", idx, err)
	}
	if len(polys) == 0 {
		l.Skipped++
		return nil
	}
	ft := Feature{Index: idx, Attrs: map[string]string{}, Polys: polys}
	if p, ok := f["properties"].(map[string]any); ok {
		for k, v := range p {
			attrSet[k] = struct{}{}
			ft.Attrs[k] = attrString(v)
		}
	}
	l.Features = append(l.Features, ft)
	return nil
}

func polysFromGeometry(g map[string]any) ([]Polygon, error) {
	switch strings.ToLower(getStr(g, "type")) {
	case "polygon":
		coords, _ := g["coordinates"].([]any)
		poly, err := parsePolygon(coords)
		if err != nil {
			return nil, err
		}
		return []Polygon{poly}, nil
	case "multipolygon":
		coords, _ := g["coordinates"].([]any)
		var out []Polygon
		for _, part := range coords {
			rings, _ := part.([]any)
			poly, err := parsePolygon(rings)
			if err != nil {
				return nil, err
			}
			out = append(out, poly)
		}
		return out, nil
	case "geometrycollection":
		geoms, _ := g["geometries"].([]any)
		var out []Polygon
		for _, it := range geoms {
			sub, _ := it.(map[string]any)
			if sub == nil {
				continue
			}
			ps, err := polysFromGeometry(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported geometry type %q", ErrBadGeometry, getStr(g, "type"))
}

func parsePolygon(rings []any) (Polygon, error) {
	var poly Polygon
	if len(rings) == 0 {
		return poly, fmt.Errorf("%w: polygon without rings", ErrBadGeometry)
	}
	for _, ring := range rings {
		arr, ok := ring.([]any)
		if !ok {
			return poly, fmt.Errorf("%w: ring is not an array", ErrBadGeometry)
		}
		rr := make([]Point, 0, len(arr))
		for _, p := range arr {
			vv, ok := p.([]any)
			if !ok || len(vv) < 2 {
				return poly, fmt.Errorf("%w: position is not a coordinate pair", ErrBadGeometry)
			}
			lon, ok1 := toFloat(vv[0])
			lat, ok2 := toFloat(vv[1])
			if !ok1 || !ok2 {
				return poly, fmt.Errorf("%w: non-numeric coordinate", ErrBadGeometry)
			}
			rr = append(rr, Point{Lat: lat, Lon: lon})
		}
		if len(rr) < 3 {
			return poly, fmt.Errorf("%w: ring with %d positions", ErrBadGeometry, len(rr))
		}
		poly.Rings = append(poly.Rings, rr)
	}
	poly.BBox = computeBBox(poly)
	return poly, nil
}

func computeBBox(p Polygon) [4]float64 {
	b := emptyBBox()
	for _, r := range p.Rings {
		for _, pt := range r {
			if pt.Lon < b[0] {
				b[0] = pt.Lon
			}
			if pt.Lat < b[1] {
				b[1] = pt.Lat
			}
			if pt.Lon > b[2] {
				b[2] = pt.Lon
			}
			if pt.Lat > b[3] {
				b[3] = pt.Lat
			}
		}
	}
	return b
}

func getStr(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// attrString：属性值转字符串；整数值的浮点数不带小数部分
func attrString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(bs)
}

// WriteGeoJSON：把图层写回 GeoJSON FeatureCollection（离线工具与测试使用）
func WriteGeoJSON(w io.Writer, l *Layer) error {
	type geom struct {
		Type        string          `json:"type"`
		Coordinates [][][][]float64 `json:"coordinates"`
	}
	type feat struct {
		Type       string            `json:"type"`
		Properties map[string]string `json:"properties"`
		Geometry   geom              `json:"geometry"`
	}
	out := struct {
		Type     string `json:"type"`
		Features []feat `json:"features"`
	}{Type: "FeatureCollection"}
	for _, f := range l.Features {
		out.Features = append(out.Features, feat{
			Type:       "Feature",
			Properties: f.Attrs,
			Geometry:   geom{Type: "MultiPolygon", Coordinates: Coordinates(f.Polys)},
		})
	}
	return json.NewEncoder(w).Encode(out)
}

// Coordinates：面集合转为 GeoJSON MultiPolygon 坐标数组（[lon, lat] 顺序）
func Coordinates(polys []Polygon) [][][][]float64 {
	out := make([][][][]float64, 0, len(polys))
	for _, p := range polys {
		rings := make([][][]float64, 0, len(p.Rings))
		for _, r := range p.Rings {
			pts := make([][]float64, 0, len(r))
			for _, pt := range r {
				pts = append(pts, []float64{pt.Lon, pt.Lat})
			}
			rings = append(rings, pts)
		}
		out = append(out, rings)
	}
	return out
}
