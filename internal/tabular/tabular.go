// 包 tabular：把上传的表格文件（xlsx/csv）读为表头 + 行的字符串矩阵，不理解业务列含义
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported sheet format")
	ErrEmptySheet        = errors.New("sheet has no header row")
)

// Table：首个非空行为表头；Rows 中的行可能短于表头（尾部空单元格被省略）
type Table struct {
	Sheet     string
	Header    []string
	Rows      [][]string
	// Delimiter：csv 的分隔符；xlsx 为 0
	Delimiter rune
}

// DecimalComma：分号或制表符分隔的 csv 来自以逗号作小数点的区域设置
func (t *Table) DecimalComma() bool {
	return t.Delimiter == ';' || t.Delimiter == '\t'
}

// Cell：按列下标取值，越界返回空串
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// ReaderFunc：把上传内容解析为表
type ReaderFunc func(data []byte) (*Table, error)

// 文档注释：表格格式注册表
// 背景：与边界格式注册表同构，按扩展名分派读取器。
type Registry struct {
	mu      sync.RWMutex
	readers map[string]ReaderFunc
}

func NewRegistry() *Registry { return &Registry{readers: make(map[string]ReaderFunc)} }

func (r *Registry) Register(ext string, fn ReaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[strings.ToLower(ext)] = fn
}

func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.readers))
	for k := range r.readers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Read：按文件名扩展名解析
func (r *Registry) Read(filename string, data []byte) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	r.mu.RLock()
	fn, ok := r.readers[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, ext, strings.Join(r.Extensions(), ", "))
	}
	return fn(data)
}

// DefaultRegistry：xlsx/xlsm 与 csv/txt
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".xlsx", ReadXLSX)
	r.Register(".xlsm", ReadXLSX)
	r.Register(".csv", ReadCSV)
	r.Register(".txt", ReadCSV)
	return r
}

// 文档注释：读取 xlsx 的第一个工作表
// 约束：首个非空行作为表头；全空行跳过。
func ReadXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	t, err := fromRows(rows)
	if err != nil {
		return nil, err
	}
	t.Sheet = sheet
	return t, nil
}

// 文档注释：读取 csv
// 背景：部分地区的表格软件默认以分号分隔；按表头行中逗号/分号/制表符的数量选择分隔符。
// 约束：允许各行字段数不一致；UTF-8 BOM 被去除。
func ReadCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	delim := sniffDelimiter(data)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		rows = append(rows, rec)
	}
	t, err := fromRows(rows)
	if err != nil {
		return nil, err
	}
	t.Delimiter = delim
	return t, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func fromRows(rows [][]string) (*Table, error) {
	t := &Table{}
	for _, r := range rows {
		if isBlank(r) {
			continue
		}
		if t.Header == nil {
			for _, h := range r {
				t.Header = append(t.Header, strings.TrimSpace(h))
			}
			continue
		}
		t.Rows = append(t.Rows, r)
	}
	if t.Header == nil {
		return nil, ErrEmptySheet
	}
	return t, nil
}

func isBlank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
