package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"salesmap/internal/metrics"
)

// 文档注释：获取访问者 IP（用于上传与导出日志）
// 背景：多层代理环境下，优先常见反向代理头，最后回退远端地址。
// 约束：头部可被伪造，只用于日志关联，不参与任何鉴权。
func clientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("cf-connecting-ip"); x != "" {
		return x
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			return y
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		return host[:i]
	}
	return host
}

var errNoFilename = errors.New("filename is required to detect the file format")

// uploadName：上传文件名，优先 ?filename=，其次 X-Filename 头；只保留基本名
func uploadName(r *http.Request) (string, error) {
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = r.Header.Get("X-Filename")
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "", errNoFilename
	}
	return name, nil
}

// readUpload：读取请求体并按类别计入上传字节数；超限错误由 LimitBody 产生
func readUpload(r *http.Request, kind string) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	metrics.UploadBytesTotal.WithLabelValues(kind).Add(float64(len(data)))
	return data, nil
}

// queryInt：读取整数查询参数，缺省或非法时返回 def
func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
