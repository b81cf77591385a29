package choropleth

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"salesmap/internal/tabular"
)

// PointRecord：一条销售记录；坐标为 WGS84 经纬度，Measure ≥ 0
type PointRecord struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Measure float64 `json:"measure"`
}

// Columns：点表的列名；为空时使用默认值与别名匹配
type Columns struct {
	Lon     string
	Lat     string
	Measure string
}

// PointReport：读取点表的统计
type PointReport struct {
	Columns    Columns `json:"columns"`
	Rows       int     `json:"rows"`
	Loaded     int     `json:"loaded"`
	Skipped    int     `json:"skipped"`
	SkippedIdx []int   `json:"skipped_rows,omitempty"`
}

var (
	lonAliases = []string{"longitude", "lon", "lng", "long", "x"}
	latAliases = []string{"latitude", "lat", "y"}
)

// maxSkippedIdx：报告中保留的跳过行号上限
const maxSkippedIdx = 20

// 文档注释：从表中抽取销售点
// 背景：列名大小写与首尾空格不敏感；经纬度列可用常见别名自动匹配，度量列需精确（忽略大小写）匹配。
// 约束：缺列返回 *MissingError（Options 为全部表头）；坐标/度量非数值、度量为负或非有限值、坐标越界的行被跳过并计数。
func ExtractPoints(t *tabular.Table, want Columns) ([]PointRecord, *PointReport, error) {
	lonIdx, lonName, err := findColumn(t.Header, want.Lon, lonAliases)
	if err != nil {
		return nil, nil, err
	}
	latIdx, latName, err := findColumn(t.Header, want.Lat, latAliases)
	if err != nil {
		return nil, nil, err
	}
	measure := want.Measure
	if measure == "" {
		measure = "Z"
	}
	mIdx, mName, err := findColumn(t.Header, measure, nil)
	if err != nil {
		return nil, nil, err
	}
	rep := &PointReport{Columns: Columns{Lon: lonName, Lat: latName, Measure: mName}, Rows: len(t.Rows)}
	pts := make([]PointRecord, 0, len(t.Rows))
	dc := t.DecimalComma()
	for i := range t.Rows {
		lon, ok1 := parseNumber(t.Cell(i, lonIdx), dc)
		lat, ok2 := parseNumber(t.Cell(i, latIdx), dc)
		m, ok3 := parseNumber(t.Cell(i, mIdx), dc)
		if !ok1 || !ok2 || !ok3 || m < 0 || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			rep.Skipped++
			if len(rep.SkippedIdx) < maxSkippedIdx {
				rep.SkippedIdx = append(rep.SkippedIdx, i+2)
			}
			continue
		}
		pts = append(pts, PointRecord{Lon: lon, Lat: lat, Measure: m})
	}
	rep.Loaded = len(pts)
	return pts, rep, nil
}

func findColumn(header []string, name string, aliases []string) (int, string, error) {
	candidates := aliases
	if name != "" {
		candidates = append([]string{name}, aliases...)
	}
	for _, c := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(c)) {
				return i, h, nil
			}
		}
	}
	missing := name
	if missing == "" && len(aliases) > 0 {
		missing = aliases[0]
	}
	return -1, "", &MissingError{Kind: KindColumn, Name: missing, Options: append([]string(nil), header...)}
}

var (
	thousandsCommaRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	decimalCommaRe   = regexp.MustCompile(`^[+-]?(\d{1,3}(\.\d{3})+|\d*),\d+$`)
)

// 文档注释：解析数值
// 约束：decimalComma 为真时 "1,5" 为 1.5，"1.234,5" 为 1234.5；否则逗号只能是千分位（"1,200"）。
// 其余含逗号的写法视为无法解析，由调用方跳过并计数。
func parseNumber(s string, decimalComma bool) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		switch {
		case decimalComma && decimalCommaRe.MatchString(s):
			s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		case !decimalComma && thousandsCommaRe.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		default:
			return 0, false
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Warning：有跳过行时返回提示，否则为 nil
func (r *PointReport) Warning() *Warning {
	if r == nil || r.Skipped == 0 {
		return nil
	}
	return &Warning{Kind: WarnSkippedRows, Message: fmt.Sprintf("%d of %d rows skipped (non-numeric, negative or out-of-range values), e.g. rows %v", r.Skipped, r.Rows, r.SkippedIdx)}
}
