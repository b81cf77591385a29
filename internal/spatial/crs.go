package spatial

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 支持的坐标参考系
const (
	CRSWGS84       = "EPSG:4326"
	CRSWebMercator = "EPSG:3857"
	CRSGCJ02       = "GCJ-02"
	CRSBD09        = "BD-09"
	// UTM 以 "UTM:<zone><N|S>" 表示，如 UTM:48N
	crsUTMPrefix = "UTM:"
)

// ErrUnknownCRS：无法识别或无法转换的坐标参考系
var ErrUnknownCRS = errors.New("unknown coordinate reference system")

var (
	epsgRe = regexp.MustCompile(`(?i)EPSG(?::+|/)(?:[0-9.]*:)?(\d+)`)
	utmRe  = regexp.MustCompile(`(?i)UTM[ _]+zone[ _]+(\d{1,2})\s*([NS])?`)
)

// detectGeoJSONCRS：读取 GeoJSON 的 crs 成员；缺省视为 WGS84（RFC 7946）
func detectGeoJSONCRS(gj map[string]any) (string, error) {
	c, ok := gj["crs"].(map[string]any)
	if !ok {
		return CRSWGS84, nil
	}
	props, _ := c["properties"].(map[string]any)
	name := getStr(props, "name")
	if name == "" {
		return CRSWGS84, nil
	}
	return ParseCRSName(name)
}

// ParseCRSName：把 EPSG/URN/别名解析为内部标识
func ParseCRSName(name string) (string, error) {
	n := strings.TrimSpace(name)
	up := strings.ToUpper(n)
	switch {
	case strings.Contains(up, "CRS84"), up == "WGS84", up == "WGS 84":
		return CRSWGS84, nil
	case strings.Contains(up, "GCJ"):
		return CRSGCJ02, nil
	case strings.Contains(up, "BD-09"), strings.Contains(up, "BD09"):
		return CRSBD09, nil
	}
	if m := epsgRe.FindStringSubmatch(n); m != nil {
		code, _ := strconv.Atoi(m[1])
		if crs, ok := crsFromEPSG(code); ok {
			return crs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCRS, name)
}

func crsFromEPSG(code int) (string, bool) {
	switch {
	case code == 4326:
		return CRSWGS84, true
	case code == 3857, code == 900913, code == 3785, code == 102100:
		return CRSWebMercator, true
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("%s%dN", crsUTMPrefix, code-32600), true
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("%s%dS", crsUTMPrefix, code-32700), true
	}
	return "", false
}

// 文档注释：识别 .prj 中的 WKT
// 背景：Shapefile 不携带 EPSG 编码，只能按 WKT 关键字推断；覆盖地理坐标、Web 墨卡托与 WGS84 UTM。
// 约束：缺少 .prj 时视为 WGS84；其余投影坐标系返回 ErrUnknownCRS。
func ParsePRJ(wkt string) (string, error) {
	s := strings.TrimSpace(wkt)
	if s == "" {
		return CRSWGS84, nil
	}
	up := strings.ToUpper(s)
	if strings.HasPrefix(up, "GEOGCS") || strings.HasPrefix(up, "GEOGCRS") {
		return CRSWGS84, nil
	}
	if strings.HasPrefix(up, "PROJCS") || strings.HasPrefix(up, "PROJCRS") {
		switch {
		case strings.Contains(up, "MERCATOR_AUXILIARY_SPHERE"),
			strings.Contains(up, "PSEUDO-MERCATOR"),
			strings.Contains(up, "PSEUDO_MERCATOR"),
			strings.Contains(up, "WEB_MERCATOR"),
			strings.Contains(up, "POPULAR VISUALISATION"):
			return CRSWebMercator, nil
		}
		if m := utmRe.FindStringSubmatch(s); m != nil && strings.Contains(up, "WGS") {
			zone, _ := strconv.Atoi(m[1])
			hemi := strings.ToUpper(m[2])
			if hemi == "" {
				hemi = "N"
			}
			if zone >= 1 && zone <= 60 {
				return fmt.Sprintf("%s%d%s", crsUTMPrefix, zone, hemi), nil
			}
		}
	}
	if m := epsgRe.FindStringSubmatch(s); m != nil {
		code, _ := strconv.Atoi(m[1])
		if crs, ok := crsFromEPSG(code); ok {
			return crs, nil
		}
	}
	return "", fmt.Errorf("%w: %.60s", ErrUnknownCRS, s)
}

// 文档注释：把图层重投影到 WGS84（返回副本）
// 背景：所有空间判定与出图都在经纬度下进行；源图层保持不变以便切换筛选时重复使用。
// 约束：转换后坐标越出经纬度范围视为坐标系声明错误，返回 ErrUnknownCRS。
func ToWGS84(l *Layer) (*Layer, error) {
	conv, err := converter(l.CRS)
	if err != nil {
		return nil, err
	}
	out := l.Clone()
	for i := range out.Features {
		f := &out.Features[i]
		for j := range f.Polys {
			p := &f.Polys[j]
			for _, r := range p.Rings {
				for k := range r {
					lat, lon := conv(r[k].Lat, r[k].Lon)
					if math.IsNaN(lat) || math.IsNaN(lon) || lon < -180.000001 || lon > 180.000001 || lat < -90.000001 || lat > 90.000001 {
						return nil, fmt.Errorf("%w: feature %d has coordinate (%g, %g) outside WGS84 after %s conversion", ErrUnknownCRS, f.Index, r[k].Lon, r[k].Lat, l.CRS)
					}
					r[k] = Point{Lat: lat, Lon: lon}
				}
			}
			p.BBox = computeBBox(*p)
		}
	}
	out.CRS = CRSWGS84
	return out, nil
}

func converter(crs string) (func(lat, lon float64) (float64, float64), error) {
	switch crs {
	case "", CRSWGS84:
		return func(lat, lon float64) (float64, float64) { return lat, lon }, nil
	case CRSWebMercator:
		return webMercatorToWGS84, nil
	case CRSGCJ02:
		return gcj02ToWGS84, nil
	case CRSBD09:
		return bd09ToWGS84, nil
	}
	if strings.HasPrefix(crs, crsUTMPrefix) {
		z := strings.TrimPrefix(crs, crsUTMPrefix)
		if len(z) >= 2 {
			zone, err := strconv.Atoi(z[:len(z)-1])
			south := strings.EqualFold(z[len(z)-1:], "S")
			if err == nil && zone >= 1 && zone <= 60 {
				return func(y, x float64) (float64, float64) { return utmToWGS84(x, y, zone, south) }, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCRS, crs)
}

const earthRadius = 6378137.0

// webMercatorToWGS84：EPSG:3857 反算；参数沿用 (lat, lon) 槽位承载 (y, x)
func webMercatorToWGS84(y, x float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lat, lon
}

// utmToWGS84：WGS84 横轴墨卡托反算（Snyder 级数展开，厘米级精度）
func utmToWGS84(easting, northing float64, zone int, south bool) (float64, float64) {
	const (
		a  = earthRadius
		f  = 1 / 298.257223563
		k0 = 0.9996
	)
	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)
	x := easting - 500000
	y := northing
	if south {
		y -= 10000000
	}
	m := y / k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)
	sin1, cos1, tan1 := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	n1 := a / math.Sqrt(1-e2*sin1*sin1)
	t1 := tan1 * tan1
	c1 := ep2 * cos1 * cos1
	r1 := a * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * k0)
	lat := phi1 - (n1*tan1/r1)*(d*d/2-(5+3*t1+10*c1-4*c1*c1-9*ep2)*d*d*d*d/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d*d*d*d*d*d/720)
	lon := (d - (1+2*t1+c1)*d*d*d/6 + (5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d*d*d*d*d/120) / cos1
	lon0 := float64(zone-1)*6 - 180 + 3
	return lat * 180 / math.Pi, lon0 + lon*180/math.Pi
}

// 文档注释：坐标系转换（GCJ-02/BD-09 → WGS84）
// 背景：国内互联网地图导出的边界常为火星坐标，需转换以贴合 WGS84 的销售点。
// 约束：简化实现，误差在数十米级；仅当来源明确声明时启用。
func gcj02ToWGS84(lat, lon float64) (float64, float64) {
	glat, glon := transformGCJ(lat, lon)
	return lat*2 - glat, lon*2 - glon
}

func bd09ToWGS84(lat, lon float64) (float64, float64) {
	x := lon - 0.0065
	y := lat - 0.006
	z := math.Sqrt(x*x+y*y) - 0.00002*math.Sin(y*math.Pi)
	theta := math.Atan2(y, x) - 0.000003*math.Cos(x*math.Pi)
	return gcj02ToWGS84(z*math.Sin(theta), z*math.Cos(theta))
}

func transformGCJ(lat, lon float64) (float64, float64) {
	if outOfChina(lat, lon) {
		return lat, lon
	}
	dLat := transformLat(lon-105.0, lat-35.0)
	dLon := transformLon(lon-105.0, lat-35.0)
	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - 0.00669342162296594323*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((6378245.0 * (1 - 0.00669342162296594323)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (6378245.0 / sqrtMagic * math.Cos(radLat) * math.Pi)
	return lat + dLat, lon + dLon
}

func outOfChina(lat, lon float64) bool {
	return lon < 72.004 || lon > 137.8347 || lat < 0.8293 || lat > 55.8271
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
