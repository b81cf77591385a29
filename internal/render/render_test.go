package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesmap/internal/choropleth"
	"salesmap/internal/spatial"
)

func rect(x0, y0, x1, y1 float64) spatial.Polygon {
	p := spatial.Polygon{Rings: [][]spatial.Point{{
		{Lon: x0, Lat: y0}, {Lon: x1, Lat: y0}, {Lon: x1, Lat: y1}, {Lon: x0, Lat: y1}, {Lon: x0, Lat: y0},
	}}}
	p.BBox = [4]float64{x0, y0, x1, y1}
	return p
}

// 一行五个方格 r0..r4，r4 无点
func runResult(t *testing.T, view choropleth.View) *choropleth.Result {
	t.Helper()
	layer := &spatial.Layer{CRS: spatial.CRSWGS84, Attributes: []string{"NAME_1", "NAME_3"}}
	var pts []choropleth.PointRecord
	for i := 0; i < 5; i++ {
		x := float64(100 + i)
		layer.Features = append(layer.Features, spatial.Feature{
			Index: i,
			Attrs: map[string]string{"NAME_1": "A", "NAME_3": fmt.Sprintf("r%d", i)},
			Polys: []spatial.Polygon{rect(x, 0, x+1, 1)},
		})
		if i < 4 {
			pts = append(pts, choropleth.PointRecord{Lon: x + 0.5, Lat: 0.5, Measure: float64(10 * (i + 1))})
		}
	}
	res, err := choropleth.Run(context.Background(), choropleth.Input{Points: pts, Layer: layer, View: view})
	require.NoError(t, err)
	return res
}

func TestBuildMap(t *testing.T) {
	res := runResult(t, choropleth.View{})
	m := BuildMap(res, DefaultStyle)
	assert.Equal(t, "FeatureCollection", m.Type)
	require.Len(t, m.Features, 5)
	assert.Equal(t, "A", m.SelectedParent)
	assert.Equal(t, []string{"A"}, m.RegionOptions)
	assert.NotNil(t, m.Breaks)
	assert.InDelta(t, 0.7, m.FillOpacity, 1e-9)

	byName := map[string]FeatureProps{}
	for _, f := range m.Features {
		assert.Equal(t, "MultiPolygon", f.Geometry.Type)
		byName[f.Properties.Region] = f.Properties
	}
	assert.Equal(t, "#d9d9d9", byName["r4"].Fill)
	assert.Equal(t, -1, byName["r4"].Bucket)
	assert.Equal(t, 40.0, byName["r3"].Total)
	assert.Equal(t, len(m.Breaks)-2, byName["r3"].Bucket)
	for _, name := range []string{"r0", "r1", "r2", "r3"} {
		assert.Equal(t, choropleth.Hex(res.Scale.ColorFor(byName[name].Total)), byName[name].Fill)
	}
	assert.InDelta(t, 102.5, m.Center.Lon, 1e-9)
	assert.Equal(t, [4]float64{100, 0, 105, 1}, m.BBox)
}

func TestBuildMapContinuousHasNilBreaks(t *testing.T) {
	res := runResult(t, choropleth.View{Mode: choropleth.ModeManual})
	m := BuildMap(res, DefaultStyle)
	assert.Nil(t, m.Breaks)
	for _, f := range m.Features {
		assert.Equal(t, -1, f.Properties.Bucket)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMap(&buf, res, DefaultStyle))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Nil(t, raw["breaks"])
	assert.Equal(t, "FeatureCollection", raw["type"])
	assert.NotEmpty(t, raw["warnings"])
}

func TestExportFormats(t *testing.T) {
	res := runResult(t, choropleth.View{})
	cases := map[string]string{"png": "\x89PNG", "svg": "<?xml", "pdf": "%PDF"}
	for format, magic := range cases {
		var buf bytes.Buffer
		err := Export(&buf, res, ExportOptions{Format: format, WidthPx: 400, Title: "A"})
		require.NoError(t, err, format)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(magic)), format)
	}
}

func TestExportWithBBox(t *testing.T) {
	res := runResult(t, choropleth.View{})
	b, err := ParseBBox("100.5,0,102,1")
	require.NoError(t, err)
	p, extent, err := BuildPlot(res, ExportOptions{BBox: &b})
	require.NoError(t, err)
	assert.Equal(t, b, extent)
	assert.Equal(t, 100.5, p.X.Min)
	assert.Equal(t, 102.0, p.X.Max)
}

func TestExportErrors(t *testing.T) {
	res := runResult(t, choropleth.View{})
	err := Export(&bytes.Buffer{}, res, ExportOptions{Format: "gif"})
	assert.ErrorIs(t, err, ErrUnsupportedExport)

	err = Export(&bytes.Buffer{}, &choropleth.Result{}, ExportOptions{})
	assert.ErrorIs(t, err, ErrEmptyMap)
}

func TestParseBBox(t *testing.T) {
	_, err := ParseBBox("1,2,3")
	assert.ErrorIs(t, err, ErrBadBBox)
	_, err = ParseBBox("3,0,1,1")
	assert.ErrorIs(t, err, ErrBadBBox)
	_, err = ParseBBox("0,-95,1,1")
	assert.ErrorIs(t, err, ErrBadBBox)
	b, err := ParseBBox(" 1, 2 ,3,4")
	require.NoError(t, err)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, b)
}

func TestAspect(t *testing.T) {
	assert.InDelta(t, 1.0, aspect([4]float64{0, 0, 1, 1}), 1e-6)
	// 60 度纬线附近经度跨度减半
	assert.InDelta(t, 2.0, aspect([4]float64{0, 59.5, 1, 60.5}), 0.02)
	assert.Equal(t, 0.3, aspect([4]float64{0, 0, 100, 1}))
	assert.Equal(t, 3.0, aspect([4]float64{0, 0, 1, 50}))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/svg+xml", ContentType("svg"))
	assert.Equal(t, "application/octet-stream", ContentType("bmp"))
}
