package spatial

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jonas-p/go-shp"
)

// ErrNoShapefile：压缩包内缺少 .shp/.dbf
var ErrNoShapefile = errors.New("archive does not contain a .shp with matching .dbf")

// 文档注释：读取 zip 打包的 Shapefile 图层
// 背景：行政区边界（如 GADM）常以 .shp/.dbf/.prj 一组文件分发；浏览器端上传时统一打包为 zip。
// 约束：仅取第一组同名 .shp/.dbf；.prj 可缺省（视为 WGS84）；仅接受面要素，空形状计入 Skipped。
func LoadShapefileZip(data []byte) (*Layer, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("shapefile zip: %w", err)
	}
	files := make(map[string]*zip.File)
	var shpNames []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), "._") {
			continue
		}
		lower := strings.ToLower(f.Name)
		files[lower] = f
		if strings.HasSuffix(lower, ".shp") {
			shpNames = append(shpNames, lower)
		}
	}
	for _, name := range shpNames {
		base := strings.TrimSuffix(name, ".shp")
		dbf, ok := files[base+".dbf"]
		if !ok {
			continue
		}
		var prj string
		if pf, ok := files[base+".prj"]; ok {
			bs, err := readZipFile(pf)
			if err != nil {
				return nil, err
			}
			prj = string(bs)
		}
		shpR, err := files[name].Open()
		if err != nil {
			return nil, err
		}
		dbfR, err := dbf.Open()
		if err != nil {
			_ = shpR.Close()
			return nil, err
		}
		return ReadShapefile(shpR, dbfR, prj)
	}
	return nil, ErrNoShapefile
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadShapefile：从 .shp/.dbf 流与 .prj 文本构建图层；负责关闭两个流
func ReadShapefile(shpR, dbfR io.ReadCloser, prj string) (*Layer, error) {
	crs, err := ParsePRJ(prj)
	if err != nil {
		_ = shpR.Close()
		_ = dbfR.Close()
		return nil, err
	}
	sr := shp.SequentialReaderFromExt(shpR, dbfR)
	defer sr.Close()
	l := &Layer{CRS: crs}
	fields := sr.Fields()
	for _, f := range fields {
		l.Attributes = append(l.Attributes, f.String())
	}
	idx := 0
	for sr.Next() {
		_, shape := sr.Shape()
		polys, ok, err := polysFromShape(shape)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", idx, err)
		}
		if !ok {
			l.Skipped++
			idx++
			continue
		}
		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			attrs[f.String()] = sr.Attribute(i)
		}
		l.Features = append(l.Features, Feature{Index: idx, Attrs: attrs, Polys: polys})
		idx++
	}
	if err := sr.Err(); err != nil {
		return nil, fmt.Errorf("shapefile: %w", err)
	}
	return l, nil
}

func polysFromShape(s shp.Shape) ([]Polygon, bool, error) {
	switch g := s.(type) {
	case *shp.Polygon:
		polys, err := assembleRings(g.Parts, g.Points)
		return polys, len(polys) > 0, err
	case *shp.PolygonZ:
		polys, err := assembleRings(g.Parts, g.Points)
		return polys, len(polys) > 0, err
	case *shp.PolygonM:
		polys, err := assembleRings(g.Parts, g.Points)
		return polys, len(polys) > 0, err
	case nil, *shp.Null:
		return nil, false, nil
	}
	return nil, false, nil
}

// 文档注释：按 Shapefile 约定组装环
// 背景：Shapefile 以顺时针环为外环、逆时针环为洞，所有环平铺在同一数组中。
// 约束：洞归属到包含其首点的最近外环，找不到时归属到前一个外环；首环为逆时针（不合规文件）时也按外环处理。
func assembleRings(parts []int32, pts []shp.Point) ([]Polygon, error) {
	var rings [][]Point
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(pts)) || start >= end {
			return nil, fmt.Errorf("%w: part %d has invalid bounds", ErrBadGeometry, i)
		}
		r := make([]Point, 0, end-start)
		for _, p := range pts[start:end] {
			r = append(r, Point{Lat: p.Y, Lon: p.X})
		}
		if len(r) < 3 {
			return nil, fmt.Errorf("%w: ring with %d positions", ErrBadGeometry, len(r))
		}
		rings = append(rings, r)
	}
	var polys []Polygon
	for i, r := range rings {
		clockwise := ringArea(r) < 0
		if clockwise || len(polys) == 0 || i == 0 {
			polys = append(polys, Polygon{Rings: [][]Point{r}})
			continue
		}
		owner := len(polys) - 1
		for k := range polys {
			if pointInRing(r[0], polys[k].Rings[0]) {
				owner = k
			}
		}
		polys[owner].Rings = append(polys[owner].Rings, r)
	}
	for i := range polys {
		polys[i].BBox = computeBBox(polys[i])
	}
	return polys, nil
}
