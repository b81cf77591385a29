// 包 api：集中注册 HTTP API 路由以解耦主入口；会话、上传、视图计算与导出
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"salesmap/internal/choropleth"
	"salesmap/internal/config"
	"salesmap/internal/logger"
	"salesmap/internal/render"
	"salesmap/internal/session"
	"salesmap/internal/spatial"
	"salesmap/internal/store"
	"salesmap/internal/tabular"
)

// Deps：路由依赖；Stats 为 nil 时不记录使用统计
type Deps struct {
	Config   *config.Config
	Sessions session.Store
	Stats    *store.Store
	Tables   *tabular.Registry
	Layers   *spatial.Registry
}

type server struct {
	Deps
	noData color.NRGBA
	style  render.Style
}

var (
	errBadJSON = errors.New("request body is not valid JSON")
	errBadCuts = errors.New("quantile cuts must be percentages between 0 and 100")
)

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Tables == nil {
		d.Tables = tabular.DefaultRegistry()
	}
	if d.Layers == nil {
		d.Layers = spatial.DefaultRegistry()
	}
	p := d.Config.Pipeline
	s := &server{Deps: d, style: render.Style{FillOpacity: p.FillOpacity, LineOpacity: p.LineOpacity}}
	nd, err := choropleth.ParseHex(p.NoDataColor)
	if err != nil {
		logger.L().Warn("nodata_color_invalid", "value", p.NoDataColor, "err", err)
		nd = choropleth.DefaultNoData
	}
	s.noData = nd

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/points", s.uploadPoints)
	mux.HandleFunc("POST /sessions/{id}/regions", s.uploadRegions)
	mux.HandleFunc("PUT /sessions/{id}/view", s.updateView)
	mux.HandleFunc("GET /sessions/{id}/map", s.getMap)
	mux.HandleFunc("GET /sessions/{id}/export", s.export)
	mux.HandleFunc("GET /palettes", s.palettes)
	mux.HandleFunc("GET /stats", s.stats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	return mux
}

func (s *server) load(r *http.Request) (*session.Session, error) {
	id := r.PathValue("id")
	if !session.ValidID(id) {
		return nil, session.ErrNotFound
	}
	return s.Sessions.Get(r.Context(), id)
}

func (s *server) save(ctx context.Context, sess *session.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	return s.Sessions.Put(ctx, sess)
}

// incr：统计写入失败只记日志
func (s *server) incr(ctx context.Context, kind store.Kind) {
	if s.Stats == nil {
		return
	}
	if err := s.Stats.Incr(ctx, kind); err != nil {
		logger.L().Warn("stats_incr_error", "kind", string(kind), "err", err)
	}
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := session.New()
	p := s.Config.Pipeline
	sess.View = choropleth.View{
		ParentAttr: p.ParentAttr,
		KeyAttr:    p.KeyAttr,
		Palette:    p.Palette,
		Mode:       choropleth.ModeQuantile,
		Cuts:       p.QuantileCuts,
	}
	if err := s.save(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Session(sess.ID).Info("session_created", "client", clientIP(r))
	writeJSON(w, http.StatusCreated, map[string]any{"id": sess.ID, "expires_in": s.Config.SessionTTLSec})
}

// sessionInfo：会话概要
type sessionInfo struct {
	ID          string                  `json:"id"`
	Ready       bool                    `json:"ready"`
	PointsFile  string                  `json:"points_file,omitempty"`
	PointReport *choropleth.PointReport `json:"point_report,omitempty"`
	RegionsFile string                  `json:"regions_file,omitempty"`
	Attributes  []string                `json:"attributes,omitempty"`
	CRS         string                  `json:"crs,omitempty"`
	Features    int                     `json:"features"`
	View        choropleth.View         `json:"view"`
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info := sessionInfo{
		ID:          sess.ID,
		Ready:       sess.Ready(),
		PointsFile:  sess.PointsFile,
		PointReport: sess.PointReport,
		RegionsFile: sess.RegionsFile,
		View:        sess.View,
	}
	if sess.Layer != nil {
		info.Attributes = sess.Layer.Attributes
		info.CRS = sess.Layer.CRS
		info.Features = len(sess.Layer.Features)
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !session.ValidID(id) {
		writeError(w, r, session.ErrNotFound)
		return
	}
	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// badUpload：未归类的解析错误统一视为输入错误
func badUpload(err error, known ...error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	var me *choropleth.MissingError
	if errors.As(err, &me) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadUpload, err)
}

// 文档注释：上传点表
// 背景：请求体为原始文件内容，格式由文件名扩展名决定；lon/lat/measure 参数用于覆盖列名，回应缺列提示。
func (s *server) uploadPoints(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := uploadName(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readUpload(r, "points")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tb, err := s.Tables.Read(name, data)
	if err != nil {
		writeError(w, r, badUpload(err, tabular.ErrUnsupportedFormat, tabular.ErrEmptySheet))
		return
	}
	q := r.URL.Query()
	p := s.Config.Pipeline
	cols := choropleth.Columns{
		Lon:     lo.Ternary(q.Get("lon") != "", q.Get("lon"), p.LonColumn),
		Lat:     lo.Ternary(q.Get("lat") != "", q.Get("lat"), p.LatColumn),
		Measure: lo.Ternary(q.Get("measure") != "", q.Get("measure"), p.MeasureColumn),
	}
	pts, rep, err := choropleth.ExtractPoints(tb, cols)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess.Points, sess.PointReport, sess.PointsFile = pts, rep, name
	if err := s.save(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	s.incr(r.Context(), store.KindUpload)
	logger.Session(sess.ID).Info("points_uploaded",
		"file", name,
		"rows", rep.Rows,
		"loaded", rep.Loaded,
		"skipped", rep.Skipped,
		"client", clientIP(r),
	)
	warnings := []choropleth.Warning{}
	if wn := rep.Warning(); wn != nil {
		warnings = append(warnings, *wn)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sheet":    tb.Sheet,
		"report":   rep,
		"warnings": warnings,
		"ready":    sess.Ready(),
	})
}

// 文档注释：上传边界文件
// 背景：GeoJSON 或打包的 Shapefile；图层以源坐标系保存，每次计算时重投影。
// 约束：连接键缺失时仍保存图层并返回 422 与候选属性，用户可通过 ?key= 重新上传或在视图中指定 key_attr。
func (s *server) uploadRegions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := uploadName(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readUpload(r, "regions")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layer, err := s.Layers.Load(name, data)
	if err != nil {
		writeError(w, r, badUpload(err, spatial.ErrUnsupportedFormat, spatial.ErrBadGeometry, spatial.ErrNoShapefile, spatial.ErrUnknownCRS))
		return
	}
	if _, err := spatial.ToWGS84(layer); err != nil {
		writeError(w, r, badUpload(err, spatial.ErrUnknownCRS))
		return
	}
	q := r.URL.Query()
	p := s.Config.Pipeline
	parentAttr := lo.Ternary(q.Get("parent_attr") != "", q.Get("parent_attr"), lo.Ternary(sess.View.ParentAttr != "", sess.View.ParentAttr, p.ParentAttr))
	key := lo.Ternary(q.Get("key") != "", q.Get("key"), lo.Ternary(sess.View.KeyAttr != "", sess.View.KeyAttr, p.KeyAttr))

	sess.Layer, sess.RegionsFile = layer, name
	sess.View.ParentAttr = parentAttr
	sess.View.Parent = ""
	resolved, keyErr := choropleth.ResolveJoinKey(layer.Attributes, key)
	if keyErr == nil {
		sess.View.KeyAttr = resolved
	}
	if err := s.save(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	s.incr(r.Context(), store.KindUpload)
	logger.Session(sess.ID).Info("regions_uploaded",
		"file", name,
		"features", len(layer.Features),
		"crs", layer.CRS,
		"client", clientIP(r),
	)
	if keyErr != nil {
		writeError(w, r, keyErr)
		return
	}
	warnings := []choropleth.Warning{}
	if !layer.HasAttr(parentAttr) {
		warnings = append(warnings, choropleth.Warning{Kind: choropleth.WarnParentMissing, Message: fmt.Sprintf("attribute %q not found; all regions are shown", parentAttr)})
	}
	if layer.Skipped > 0 {
		warnings = append(warnings, choropleth.Warning{Kind: choropleth.WarnSkippedFeatures, Message: fmt.Sprintf("%d features without polygon geometry were ignored", layer.Skipped)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes":     layer.Attributes,
		"key":            resolved,
		"parent_attr":    parentAttr,
		"region_options": append([]string{choropleth.AllRegions}, layer.AttrValues(parentAttr)...),
		"crs":            layer.CRS,
		"features":       len(layer.Features),
		"warnings":       warnings,
		"ready":          sess.Ready(),
	})
}

// viewRequest：视图更新；缺省字段保持当前值
type viewRequest struct {
	ParentAttr *string   `json:"parent_attr"`
	Parent     *string   `json:"parent"`
	KeyAttr    *string   `json:"key_attr"`
	Palette    *string   `json:"palette"`
	Mode       *string   `json:"mode"`
	Cuts       []float64 `json:"cuts"`
	Breaks     *string   `json:"breaks"`
}

func (v viewRequest) apply(cur choropleth.View) (choropleth.View, error) {
	if v.ParentAttr != nil {
		cur.ParentAttr = *v.ParentAttr
		cur.Parent = ""
	}
	if v.Parent != nil {
		cur.Parent = *v.Parent
	}
	if v.KeyAttr != nil {
		cur.KeyAttr = *v.KeyAttr
	}
	if v.Palette != nil {
		cur.Palette = *v.Palette
	}
	if v.Mode != nil {
		m, err := choropleth.ParseMode(*v.Mode)
		if err != nil {
			return cur, err
		}
		cur.Mode = m
	}
	if v.Cuts != nil {
		for _, c := range v.Cuts {
			if c < 0 || c > 100 {
				return cur, errBadCuts
			}
		}
		cur.Cuts = v.Cuts
	}
	if v.Breaks != nil {
		cur.Breaks = *v.Breaks
	}
	return cur, nil
}

func (s *server) run(ctx context.Context, sess *session.Session) (*choropleth.Result, error) {
	if !sess.Ready() {
		return nil, errNotReady
	}
	return choropleth.Run(ctx, choropleth.Input{
		Points:      sess.Points,
		Report:      sess.PointReport,
		Layer:       sess.Layer,
		View:        sess.View,
		PriorBreaks: sess.LastBreaks,
		NoData:      s.noData,
	})
}

// 文档注释：更新视图并重新计算
// 约束：计算失败时不保存新视图；手动断点被拒绝时恢复上一次接受的分级参数（方式、分位点、断点文本）并按其重算，
// 响应与之后的 GET /map、/export 出自同一状态。LastBreaks 只在手动离散分级被接受时非空。
func (s *server) updateView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	prev := sess.View
	if sess.View, err = req.apply(prev); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.run(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.BreaksRejected {
		rejected := lo.Filter(res.Warnings, func(wn choropleth.Warning, _ int) bool {
			return wn.Kind == choropleth.WarnMalformedBreaks
		})
		sess.View = res.View
		sess.View.Mode, sess.View.Cuts, sess.View.Breaks = prev.Mode, prev.Cuts, prev.Breaks
		if res, err = s.run(r.Context(), sess); err != nil {
			writeError(w, r, err)
			return
		}
		res.Warnings = append(res.Warnings, rejected...)
		res.BreaksRejected = true
		logger.Session(sess.ID).Info("breaks_rejected", "restored", prev.Breaks)
	}
	sess.View = res.View
	sess.LastBreaks = nil
	if res.View.Mode == choropleth.ModeManual && !res.Classification.Continuous() {
		sess.LastBreaks = append([]float64(nil), res.Classification.Breaks...)
	}
	if err := s.save(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	s.incr(r.Context(), store.KindRender)
	writeJSON(w, http.StatusOK, render.BuildMap(res, s.style))
}

func (s *server) getMap(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.run(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.incr(r.Context(), store.KindRender)
	writeJSON(w, http.StatusOK, render.BuildMap(res, s.style))
}

// 文档注释：导出静态图片
// 背景：先渲染到内存，失败时仍能返回 JSON 错误。
func (s *server) export(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	opt := render.ExportOptions{
		Format:  strings.ToLower(lo.Ternary(q.Get("format") != "", q.Get("format"), "png")),
		WidthPx: queryInt(r, "width", s.Config.Pipeline.ExportWidthPx),
		Style:   s.style,
	}
	if bs := q.Get("bbox"); bs != "" {
		b, err := render.ParseBBox(bs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		opt.BBox = &b
	}
	res, err := s.run(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	opt.Title = lo.Ternary(res.View.Parent == choropleth.AllRegions, "All regions", res.View.Parent)
	var buf bytes.Buffer
	if err := render.Export(&buf, res, opt); err != nil {
		writeError(w, r, err)
		return
	}
	s.incr(r.Context(), store.KindExport)
	logger.Session(sess.ID).Info("map_exported", "format", opt.Format, "bytes", buf.Len(), "client", clientIP(r))
	w.Header().Set("content-type", render.ContentType(opt.Format))
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", "salesmap."+opt.Format))
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *server) palettes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"palettes": choropleth.PaletteNames(),
		"default":  s.Config.Pipeline.Palette,
		"modes":    []choropleth.Mode{choropleth.ModeQuantile, choropleth.ModeManual},
	})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	t, err := s.Stats.GetTotals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "totals": t})
}
