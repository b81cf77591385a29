package spatial

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, x1, y1 float64) []Point {
	return []Point{{Lon: x0, Lat: y0}, {Lon: x1, Lat: y0}, {Lon: x1, Lat: y1}, {Lon: x0, Lat: y1}, {Lon: x0, Lat: y0}}
}

func poly(rings ...[]Point) Polygon {
	p := Polygon{Rings: rings}
	p.BBox = computeBBox(p)
	return p
}

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NAME_1": "Jawa Barat", "NAME_3": "Bogor", "GID": 7},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"NAME_1": "Banten", "NAME_3": "Serang"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[1,0],[2,0],[2,1],[1,1],[1,0]]], [[[5,5],[6,5],[6,6],[5,6],[5,5]]]]}},
    {"type": "Feature", "properties": {"NAME_1": "Banten", "NAME_3": "Empty"}, "geometry": null}
  ]
}`

func TestLoadGeoJSON(t *testing.T) {
	l, err := LoadGeoJSON(strings.NewReader(sampleGeoJSON))
	require.NoError(t, err)
	assert.Equal(t, CRSWGS84, l.CRS)
	require.Len(t, l.Features, 2)
	assert.Equal(t, 1, l.Skipped)
	assert.Equal(t, []string{"GID", "NAME_1", "NAME_3"}, l.Attributes)
	assert.Equal(t, "7", l.Features[0].Attrs["GID"])
	assert.Len(t, l.Features[1].Polys, 2)
	assert.Equal(t, [4]float64{1, 0, 2, 1}, l.Features[1].Polys[0].BBox)
	assert.Equal(t, []string{"Banten", "Jawa Barat"}, l.AttrValues("NAME_1"))
	assert.True(t, l.HasAttr("NAME_3"))
	assert.False(t, l.HasAttr("NAME_2"))
}

func TestLoadGeoJSONBadGeometry(t *testing.T) {
	_, err := LoadGeoJSON(strings.NewReader(`{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`))
	assert.ErrorIs(t, err, ErrBadGeometry)

	_, err = LoadGeoJSON(strings.NewReader(`{"type":"Polygon","coordinates":[[[0,0],["x",1],[1,1]]]}`))
	assert.ErrorIs(t, err, ErrBadGeometry)

	_, err = LoadGeoJSON(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestLoadGeoJSONCRS(t *testing.T) {
	in := `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},
	"features":[{"type":"Feature","properties":{"n":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1113194.9,0],[1113194.9,1118889.97],[0,1118889.97],[0,0]]]}}]}`
	l, err := LoadGeoJSON(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, CRSWebMercator, l.CRS)

	w, err := ToWGS84(l)
	require.NoError(t, err)
	assert.Equal(t, CRSWGS84, w.CRS)
	b := w.Features[0].Polys[0].BBox
	assert.InDelta(t, 10, b[2], 1e-4)
	assert.InDelta(t, 10, b[3], 1e-4)
	// 源图层保持不变
	assert.InDelta(t, 1113194.9, l.Features[0].Polys[0].BBox[2], 1e-6)

	_, err = LoadGeoJSON(strings.NewReader(`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"EPSG:2154"}},"features":[]}`))
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestParseCRSName(t *testing.T) {
	cases := map[string]string{
		"EPSG:4326":                     CRSWGS84,
		"urn:ogc:def:crs:OGC:1.3:CRS84": CRSWGS84,
		"EPSG:900913":                   CRSWebMercator,
		"urn:ogc:def:crs:EPSG:6.6:4326": CRSWGS84,
		"EPSG:32748":                    "UTM:48S",
		"GCJ-02":                        CRSGCJ02,
		"bd09":                          CRSBD09,
	}
	for in, want := range cases {
		got, err := ParseCRSName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParsePRJ(t *testing.T) {
	crs, err := ParsePRJ(`GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]]]`)
	require.NoError(t, err)
	assert.Equal(t, CRSWGS84, crs)

	crs, err = ParsePRJ(`PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`)
	require.NoError(t, err)
	assert.Equal(t, CRSWebMercator, crs)

	crs, err = ParsePRJ(`PROJCS["WGS_1984_UTM_Zone_48S",GEOGCS["GCS_WGS_1984"]]`)
	require.NoError(t, err)
	assert.Equal(t, "UTM:48S", crs)

	crs, err = ParsePRJ("")
	require.NoError(t, err)
	assert.Equal(t, CRSWGS84, crs)

	_, err = ParsePRJ(`PROJCS["RGF93_Lambert_93",GEOGCS["GCS_RGF_1993"]]`)
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestUTMInverse(t *testing.T) {
	lat, lon := utmToWGS84(500000, 0, 31, false)
	assert.InDelta(t, 0, lat, 1e-9)
	assert.InDelta(t, 3, lon, 1e-9)

	lat, lon = utmToWGS84(500000, 10000000, 48, true)
	assert.InDelta(t, 0, lat, 1e-9)
	assert.InDelta(t, 105, lon, 1e-9)

	lat, lon = utmToWGS84(600000, 0, 31, false)
	assert.InDelta(t, 0, lat, 1e-6)
	assert.InDelta(t, 3.8986, lon, 1e-3)
}

func TestToWGS84RejectsOutOfRange(t *testing.T) {
	l := &Layer{CRS: CRSWGS84, Features: []Feature{{Polys: []Polygon{poly(square(0, 0, 500000, 10))}}}}
	_, err := ToWGS84(l)
	assert.ErrorIs(t, err, ErrUnknownCRS)

	l.CRS = "EPSG:0"
	_, err = ToWGS84(l)
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestGCJRoundTripOutsideChina(t *testing.T) {
	lat, lon := gcj02ToWGS84(-6.2, 106.8)
	assert.Equal(t, -6.2, lat)
	assert.Equal(t, 106.8, lon)
}

func TestWithin(t *testing.T) {
	p := poly(square(0, 0, 10, 10), square(4, 4, 6, 6))
	assert.True(t, Within(Point{Lon: 1, Lat: 1}, p))
	assert.False(t, Within(Point{Lon: 5, Lat: 5}, p), "inside hole")
	assert.False(t, Within(Point{Lon: 0, Lat: 5}, p), "outer edge")
	assert.False(t, Within(Point{Lon: 4, Lat: 5}, p), "hole edge")
	assert.False(t, Within(Point{Lon: 10, Lat: 10}, p), "vertex")
	assert.False(t, Within(Point{Lon: 11, Lat: 5}, p))
	assert.True(t, WithinAny(Point{Lon: 9, Lat: 9}, []Polygon{poly(square(20, 20, 21, 21)), p}))
}

func TestIndexLocateDeterministic(t *testing.T) {
	groups := [][]Polygon{
		{poly(square(0, 0, 1, 1))},
		{poly(square(1, 0, 2, 1))},
		{poly(square(0, 0, 2, 1))}, // 与前两者重叠
	}
	idx := NewIndex(groups)
	assert.Equal(t, 0, idx.Locate(Point{Lon: 0.5, Lat: 0.5}))
	assert.Equal(t, 1, idx.Locate(Point{Lon: 1.5, Lat: 0.5}))
	// 落在 0 与 1 的公共边上：0、1 都不含该点，2 的内部含该点
	assert.Equal(t, 2, idx.Locate(Point{Lon: 1, Lat: 0.5}))
	assert.Equal(t, -1, idx.Locate(Point{Lon: 3, Lat: 3}))
}

func TestIndexLargePolygonGoesGlobal(t *testing.T) {
	groups := [][]Polygon{
		{poly(square(-170, -80, 170, 80))},
		{poly(square(0.1, 0.1, 0.2, 0.2)), poly(square(0.3, 0.3, 0.4, 0.4))},
	}
	idx := NewIndex(groups)
	assert.Equal(t, 0, idx.Locate(Point{Lon: 0.15, Lat: 0.15}))
	assert.Equal(t, 0, idx.Locate(Point{Lon: 100, Lat: 50}))
}

func TestCentroidAndArea(t *testing.T) {
	c := Centroid([]Polygon{poly(square(0, 0, 2, 2))})
	assert.InDelta(t, 1, c.Lon, 1e-9)
	assert.InDelta(t, 1, c.Lat, 1e-9)
	assert.InDelta(t, 4, Area([]Polygon{poly(square(0, 0, 2, 2))}), 1e-9)
	assert.InDelta(t, 96, Area([]Polygon{poly(square(0, 0, 10, 10), square(4, 4, 6, 6))}), 1e-9)

	o := Oriented(poly(square(0, 0, 10, 10), square(4, 4, 6, 6)))
	assert.Greater(t, ringArea(o.Rings[0]), 0.0)
	assert.Less(t, ringArea(o.Rings[1]), 0.0)
}

func TestGeohash(t *testing.T) {
	assert.Equal(t, "u4pruydqqvj", encodeGeohash(57.64911, 10.40744, 11))
	w, h := geohashCellSize(1)
	assert.Equal(t, 45.0, w)
	assert.Equal(t, 45.0, h)
}

func writeShapefileZip(t *testing.T, prj string) []byte {
	t.Helper()
	dir := t.TempDir()
	w, err := shp.Create(filepath.Join(dir, "regions.shp"), shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME_1", 20), shp.StringField("NAME_3", 20)}))
	cw := func(x0, y0, x1, y1 float64) []shp.Point {
		return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
	}
	ccw := func(x0, y0, x1, y1 float64) []shp.Point {
		return []shp.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
	}
	p1 := shp.Polygon(*shp.NewPolyLine([][]shp.Point{cw(0, 0, 10, 10), ccw(4, 4, 6, 6)}))
	row := w.Write(&p1)
	require.NoError(t, w.WriteAttribute(int(row), 0, "Jawa Barat"))
	require.NoError(t, w.WriteAttribute(int(row), 1, "Bogor"))
	p2 := shp.Polygon(*shp.NewPolyLine([][]shp.Point{cw(10, 0, 20, 10)}))
	row = w.Write(&p2)
	require.NoError(t, w.WriteAttribute(int(row), 0, "Banten"))
	require.NoError(t, w.WriteAttribute(int(row), 1, "Serang"))
	w.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		bs, err := os.ReadFile(filepath.Join(dir, "regions"+ext))
		require.NoError(t, err)
		f, err := zw.Create("gadm/regions" + ext)
		require.NoError(t, err)
		_, err = f.Write(bs)
		require.NoError(t, err)
	}
	if prj != "" {
		f, err := zw.Create("gadm/regions.prj")
		require.NoError(t, err)
		_, err = f.Write([]byte(prj))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoadShapefileZip(t *testing.T) {
	data := writeShapefileZip(t, `GEOGCS["GCS_WGS_1984"]`)
	l, err := LoadShapefileZip(data)
	require.NoError(t, err)
	assert.Equal(t, CRSWGS84, l.CRS)
	assert.Equal(t, []string{"NAME_1", "NAME_3"}, l.Attributes)
	require.Len(t, l.Features, 2)
	assert.Equal(t, "Bogor", l.Features[0].Attrs["NAME_3"])
	require.Len(t, l.Features[0].Polys, 1)
	assert.Len(t, l.Features[0].Polys[0].Rings, 2, "hole attached to outer ring")
	assert.False(t, Within(Point{Lon: 5, Lat: 5}, l.Features[0].Polys[0]))
	assert.True(t, Within(Point{Lon: 1, Lat: 1}, l.Features[0].Polys[0]))
	assert.Equal(t, "Serang", l.Features[1].Attrs["NAME_3"])

	r := DefaultRegistry()
	l2, err := r.Load("GADM.ZIP", data)
	require.NoError(t, err)
	assert.Len(t, l2.Features, 2)
}

func TestLoadShapefileZipErrors(t *testing.T) {
	_, err := LoadShapefileZip([]byte("nope"))
	assert.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("readme.txt")
	_, _ = f.Write([]byte("x"))
	require.NoError(t, zw.Close())
	_, err = LoadShapefileZip(buf.Bytes())
	assert.ErrorIs(t, err, ErrNoShapefile)

	_, err = LoadShapefileZip(writeShapefileZip(t, `PROJCS["RGF93_Lambert_93"]`))
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestRegistryUnsupported(t *testing.T) {
	_, err := DefaultRegistry().Load("regions.kml", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, []string{".geojson", ".json", ".zip"}, DefaultRegistry().Extensions())
}

func TestWriteGeoJSONRoundTrip(t *testing.T) {
	l, err := LoadGeoJSON(strings.NewReader(sampleGeoJSON))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, l))
	l2, err := LoadGeoJSON(&buf)
	require.NoError(t, err)
	assert.Len(t, l2.Features, 2)
	assert.Equal(t, l.Features[1].Polys[1].BBox, l2.Features[1].Polys[1].BBox)
}
