package choropleth

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"salesmap/internal/spatial"
)

// AllRegions：上级筛选取此值时不过滤
const AllRegions = "*"

// DefaultJoinKey：默认连接键属性（第三级行政区名）
const DefaultJoinKey = "NAME_3"

// RegionPolygon：经重投影与筛选后的区域要素
type RegionPolygon struct {
	Name   string
	Parent string
	Order  int
	Attrs  map[string]string
	Polys  []spatial.Polygon
}

// NormalizeOptions：筛选与连接键设置；空值取默认
type NormalizeOptions struct {
	ParentAttr string
	Parent     string
	KeyAttr    string
}

// Normalized：归一化结果
type Normalized struct {
	Points         []PointRecord
	Regions        []RegionPolygon
	RegionOptions  []string
	SelectedParent string
	ParentAttr     string
	KeyAttr        string
	Warnings       []Warning
}

// 文档注释：输入归一化
// 背景：把边界重投影到 WGS84，列出上级区域选项并按选择筛选，确定连接键。
// 约束：只在副本上操作，源图层不变；上级属性缺失时给出警告并保留全部区域；
// 上级选择为空时取排序后的第一个选项，为 AllRegions 时不过滤，不在选项中时返回 *MissingError。
func Normalize(points []PointRecord, layer *spatial.Layer, opt NormalizeOptions) (*Normalized, error) {
	if layer == nil {
		return nil, fmt.Errorf("%w: no boundary layer loaded", ErrNoRegions)
	}
	key, err := ResolveJoinKey(layer.Attributes, lo.Ternary(opt.KeyAttr == "", DefaultJoinKey, opt.KeyAttr))
	if err != nil {
		return nil, err
	}
	wgs, err := spatial.ToWGS84(layer)
	if err != nil {
		return nil, err
	}
	out := &Normalized{KeyAttr: key, ParentAttr: opt.ParentAttr}
	if out.ParentAttr == "" {
		out.ParentAttr = "NAME_1"
	}
	if wgs.Skipped > 0 {
		out.Warnings = append(out.Warnings, Warning{Kind: WarnSkippedFeatures, Message: fmt.Sprintf("%d features without polygon geometry were ignored", wgs.Skipped)})
	}

	filterOn := false
	if wgs.HasAttr(out.ParentAttr) {
		out.RegionOptions = wgs.AttrValues(out.ParentAttr)
		switch {
		case opt.Parent == AllRegions:
			out.SelectedParent = AllRegions
		case opt.Parent == "":
			if len(out.RegionOptions) > 0 {
				out.SelectedParent = out.RegionOptions[0]
				filterOn = true
			}
		case lo.Contains(out.RegionOptions, opt.Parent):
			out.SelectedParent = opt.Parent
			filterOn = true
		default:
			return nil, &MissingError{Kind: KindParent, Name: opt.Parent, Options: append([]string{AllRegions}, out.RegionOptions...)}
		}
	} else {
		out.Warnings = append(out.Warnings, Warning{Kind: WarnParentMissing, Message: fmt.Sprintf("attribute %q not found; showing all regions", out.ParentAttr)})
	}

	for _, f := range wgs.Features {
		parent := f.Attrs[out.ParentAttr]
		if filterOn && parent != out.SelectedParent {
			continue
		}
		out.Regions = append(out.Regions, RegionPolygon{
			Name:   f.Attrs[key],
			Parent: parent,
			Order:  f.Index,
			Attrs:  f.Attrs,
			Polys:  f.Polys,
		})
	}
	if len(out.Regions) == 0 {
		return nil, ErrNoRegions
	}
	out.Points = lo.Filter(points, func(p PointRecord, _ int) bool {
		return p.Measure >= 0 && p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
	})
	return out, nil
}

// 文档注释：确定连接键属性
// 背景：优先使用 preferred；大小写不同的同名属性视为匹配。
// 约束：找不到时返回 *MissingError，Options 为全部属性名供用户选择。
func ResolveJoinKey(attrs []string, preferred string) (string, error) {
	if preferred == "" {
		preferred = DefaultJoinKey
	}
	if lo.Contains(attrs, preferred) {
		return preferred, nil
	}
	if a, ok := lo.Find(attrs, func(a string) bool { return strings.EqualFold(a, preferred) }); ok {
		return a, nil
	}
	return "", &MissingError{Kind: KindAttribute, Name: preferred, Options: append([]string(nil), attrs...)}
}
