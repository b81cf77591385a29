package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"salesmap/internal/choropleth"
	"salesmap/internal/logger"
	"salesmap/internal/render"
	"salesmap/internal/session"
	"salesmap/internal/spatial"
	"salesmap/internal/tabular"
)

var (
	errNotReady  = errors.New("upload both the points sheet and the boundary file first")
	errBadUpload = errors.New("cannot read uploaded file")
)

// errorBody：错误响应；缺失项时附带可选项，前端据此提示用户选择
type errorBody struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Name    string   `json:"name,omitempty"`
	Options []string `json:"options,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// 文档注释：错误到状态码的映射
// 约束：需要用户修正输入的错误为 4xx 并携带 kind；其余一律 500，细节只写日志。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		me  *choropleth.MissingError
		mbe *http.MaxBytesError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &me):
		status = http.StatusUnprocessableEntity
		body.Kind, body.Name, body.Options = me.Kind, me.Name, me.Options
	case errors.As(err, &mbe):
		status = http.StatusRequestEntityTooLarge
		body.Kind = "too_large"
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
		body.Kind = "session"
	case errors.Is(err, errNotReady), errors.Is(err, render.ErrEmptyMap):
		status = http.StatusConflict
		body.Kind = "not_ready"
	case errors.Is(err, tabular.ErrUnsupportedFormat), errors.Is(err, spatial.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
		body.Kind = "format"
	case errors.Is(err, choropleth.ErrUnknownPalette), errors.Is(err, choropleth.ErrUnknownMode),
		errors.Is(err, render.ErrUnsupportedExport), errors.Is(err, render.ErrBadBBox), errors.Is(err, errNoFilename),
		errors.Is(err, errBadJSON), errors.Is(err, errBadCuts):
		status = http.StatusBadRequest
		body.Kind = "param"
	case errors.Is(err, tabular.ErrEmptySheet), errors.Is(err, spatial.ErrBadGeometry),
		errors.Is(err, spatial.ErrNoShapefile), errors.Is(err, spatial.ErrUnknownCRS), errors.Is(err, choropleth.ErrNoRegions), errors.Is(err, errBadUpload):
		status = http.StatusUnprocessableEntity
		body.Kind = "input"
	}
	if status == http.StatusInternalServerError {
		logger.L().Error("api_error", "path", r.URL.Path, "err", err)
		body.Error = "internal error"
	} else {
		logger.L().Debug("api_reject", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}
