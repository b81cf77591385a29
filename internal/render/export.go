package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"salesmap/internal/choropleth"
	"salesmap/internal/metrics"
	"salesmap/internal/spatial"
)

var (
	// ErrUnsupportedExport：不支持的导出格式
	ErrUnsupportedExport = errors.New("unsupported export format")
	// ErrBadBBox：可视范围参数非法
	ErrBadBBox = errors.New("bad bbox")
	// ErrEmptyMap：没有可绘制的区域
	ErrEmptyMap = errors.New("nothing to draw")
)

// Formats：支持的导出格式
var Formats = []string{"png", "svg", "pdf"}

const (
	defaultWidthPx = 1200
	maxWidthPx     = 8000
	// 位图按 96 DPI 输出，vg.Length 以 1/72 英寸为单位
	pxToPt = 72.0 / 96.0
)

// ContentType：导出格式对应的 MIME 类型
func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// ExportOptions：静态导出参数；BBox 为空时使用全部区域的包围盒
type ExportOptions struct {
	Format  string
	WidthPx int
	BBox    *[4]float64
	Title   string
	Style   Style
}

// ParseBBox：解析 "minLon,minLat,maxLon,maxLat"
func ParseBBox(s string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("%w: want 4 numbers, got %d", ErrBadBBox, len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return b, fmt.Errorf("%w: %q", ErrBadBBox, p)
		}
		b[i] = f
	}
	if b[0] >= b[2] || b[1] >= b[3] {
		return b, fmt.Errorf("%w: min must be below max", ErrBadBBox)
	}
	if b[1] < -90 || b[3] > 90 {
		return b, fmt.Errorf("%w: latitude out of range", ErrBadBBox)
	}
	return b, nil
}

// 文档注释：构建静态地图
// 背景：与交互地图共用 Scale.ColorFor，每个区域的每个面一个 plotter.Polygon；图例逐级列出颜色与区间并追加无数据色。
// 约束：洞依赖绕向区分，绘制前统一为外环逆时针、洞顺时针。
func BuildPlot(res *choropleth.Result, opt ExportOptions) (*plot.Plot, [4]float64, error) {
	var extent [4]float64
	if res == nil || res.Aggregation == nil || len(res.Aggregation.Regions) == 0 {
		return nil, extent, ErrEmptyMap
	}
	st := opt.Style
	if st.FillOpacity <= 0 {
		st.FillOpacity = DefaultStyle.FillOpacity
	}
	if st.LineOpacity <= 0 {
		st.LineOpacity = DefaultStyle.LineOpacity
	}

	p := plot.New()
	p.Title.Text = opt.Title
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	outline := color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: alpha(st.LineOpacity)}

	for _, r := range res.Aggregation.Regions {
		fill := res.Scale.ColorFor(r.Total)
		fill.A = alpha(st.FillOpacity)
		for _, poly := range r.Polys {
			pg, err := polygonPlotter(spatial.Oriented(poly))
			if err != nil {
				return nil, extent, err
			}
			pg.Color = fill
			pg.LineStyle.Color = outline
			pg.LineStyle.Width = vg.Points(0.4)
			p.Add(pg)
		}
	}

	extent = res.Stats.BBox
	if opt.BBox != nil {
		extent = *opt.BBox
	}
	if extent[0] >= extent[2] || extent[1] >= extent[3] || math.IsInf(extent[0], 0) {
		return nil, extent, fmt.Errorf("%w: empty extent", ErrBadBBox)
	}
	p.X.Min, p.X.Max = extent[0], extent[2]
	p.Y.Min, p.Y.Max = extent[1], extent[3]

	if err := addLegend(p, res, st); err != nil {
		return nil, extent, err
	}
	return p, extent, nil
}

// 文档注释：导出静态图片
// 约束：宽度缺省 1200 像素，上限 8000；高度按范围纵横比计算并做纬度余弦校正，限制在宽度的 0.3 到 3 倍之间。
func Export(w io.Writer, res *choropleth.Result, opt ExportOptions) error {
	format := strings.ToLower(strings.TrimSpace(opt.Format))
	if format == "" {
		format = "png"
	}
	if !validFormat(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedExport, opt.Format)
	}
	p, extent, err := BuildPlot(res, opt)
	if err != nil {
		return err
	}
	width := opt.WidthPx
	if width <= 0 {
		width = defaultWidthPx
	}
	if width > maxWidthPx {
		width = maxWidthPx
	}
	wPt := vg.Length(float64(width) * pxToPt)
	hPt := vg.Length(float64(wPt) * aspect(extent))
	wt, err := p.WriterTo(wPt, hPt, format)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(w); err != nil {
		return err
	}
	metrics.ExportsTotal.WithLabelValues(format).Inc()
	return nil
}

func validFormat(f string) bool {
	for _, x := range Formats {
		if x == f {
			return true
		}
	}
	return false
}

// aspect：高宽比；经度跨度按中纬度余弦缩放
func aspect(b [4]float64) float64 {
	midLat := (b[1] + b[3]) / 2 * math.Pi / 180
	dx := (b[2] - b[0]) * math.Cos(midLat)
	dy := b[3] - b[1]
	if dx <= 0 {
		return 1
	}
	return math.Min(math.Max(dy/dx, 0.3), 3)
}

func alpha(op float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(op, 0), 1) * 255))
}

func polygonPlotter(poly spatial.Polygon) (*plotter.Polygon, error) {
	rings := make([]plotter.XYer, 0, len(poly.Rings))
	for _, r := range poly.Rings {
		xys := make(plotter.XYs, len(r))
		for i, pt := range r {
			xys[i].X = pt.Lon
			xys[i].Y = pt.Lat
		}
		rings = append(rings, xys)
	}
	return plotter.NewPolygon(rings...)
}

// swatch：图例色块，复用 plotter.Polygon 的缩略图绘制
func swatch(c color.NRGBA) *plotter.Polygon {
	pg := &plotter.Polygon{Color: c}
	pg.LineStyle.Width = vg.Points(0.3)
	pg.LineStyle.Color = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	return pg
}

func addLegend(p *plot.Plot, res *choropleth.Result, st Style) error {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = vg.Points(-6)
	p.Legend.YOffs = vg.Points(-6)
	for _, e := range res.Legend.Entries {
		c, err := choropleth.ParseHex(e.Color)
		if err != nil {
			return err
		}
		c.A = alpha(st.FillOpacity)
		p.Legend.Add(e.Label, swatch(c))
	}
	nd := res.Scale.NoData
	nd.A = alpha(st.FillOpacity)
	p.Legend.Add(res.Legend.NoData.Label, swatch(nd))
	return nil
}
