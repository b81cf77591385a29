package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesmap/internal/config"
)

const regions = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"NAME_1":"Jawa Barat","NAME_3":"Bogor"},"geometry":{"type":"Polygon","coordinates":[[[106,-7],[107,-7],[107,-6],[106,-6],[106,-7]]]}},
 {"type":"Feature","properties":{"NAME_1":"Jawa Barat","NAME_3":"Bekasi"},"geometry":{"type":"Polygon","coordinates":[[[107,-7],[108,-7],[108,-6],[107,-6],[107,-7]]]}},
 {"type":"Feature","properties":{"NAME_1":"Banten","NAME_3":"Serang"},"geometry":{"type":"Polygon","coordinates":[[[105,-7],[106,-7],[106,-6],[105,-6],[105,-7]]]}}
]}`

const points = "Longitude;Latitude;Z\n106.5;-6.5;1200\n107.5;-6.5;800\n107.2;-6.1;300\n105.5;-6.5;50\n"

func writeInputs(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "sales.csv")
	r := filepath.Join(dir, "gadm.geojson")
	require.NoError(t, os.WriteFile(p, []byte(points), 0o644))
	require.NoError(t, os.WriteFile(r, []byte(regions), 0o644))
	return dir, p, r
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(config.Default())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderWritesOutputs(t *testing.T) {
	dir, p, r := writeInputs(t)
	png := filepath.Join(dir, "map.png")
	gj := filepath.Join(dir, "map.geojson")
	out, err := execute(t, "--points", p, "--regions", r, "--parent", "Jawa Barat", "--out", png, "--geojson", gj, "--width", "400")
	require.NoError(t, err, out)
	assert.Contains(t, out, "total: 2,300 (2 regions, 3 points matched, 1 dropped)")
	assert.Contains(t, out, "Bogor")
	assert.Contains(t, out, "breaks: continuous")

	b, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))

	raw, err := os.ReadFile(gj)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "Jawa Barat", m["selected_parent"])
	assert.Len(t, m["features"], 2)
}

func TestRenderMissingParentHints(t *testing.T) {
	_, p, r := writeInputs(t)
	out, err := execute(t, "--points", p, "--regions", r, "--parent", "Bali")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--parent")
	assert.Contains(t, out, "Banten")
}

func TestRenderRequiresInputs(t *testing.T) {
	_, err := execute(t, "--points", "x.csv")
	assert.Error(t, err)
}
