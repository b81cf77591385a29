package spatial

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedFormat：扩展名没有对应的读取器
var ErrUnsupportedFormat = errors.New("unsupported boundary format")

// LoaderFunc：把上传内容解析为图层
type LoaderFunc func(data []byte) (*Layer, error)

// 文档注释：边界格式注册表
// 背景：按扩展名分派到具体读取器；新增格式只需注册，不改调用方。
// 约束：扩展名不区分大小写，含前导点；线程安全读写。
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]LoaderFunc
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]LoaderFunc)}
}

// Register：登记扩展名（如 ".geojson"）对应的读取器
func (r *Registry) Register(ext string, fn LoaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = fn
}

// Extensions：已登记的扩展名（排序）
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for k := range r.loaders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load：按文件名扩展名解析
func (r *Registry) Load(filename string, data []byte) (*Layer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	r.mu.RLock()
	fn, ok := r.loaders[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, ext, strings.Join(r.Extensions(), ", "))
	}
	return fn(data)
}

// DefaultRegistry：GeoJSON 与 zip 打包的 Shapefile
func DefaultRegistry() *Registry {
	r := NewRegistry()
	geo := func(data []byte) (*Layer, error) { return LoadGeoJSON(bytes.NewReader(data)) }
	r.Register(".geojson", geo)
	r.Register(".json", geo)
	r.Register(".zip", LoadShapefileZip)
	return r
}
