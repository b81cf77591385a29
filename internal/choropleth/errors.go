package choropleth

import (
	"errors"
	"fmt"
	"strings"
)

// 缺失项类别
const (
	KindColumn    = "column"
	KindAttribute = "attribute"
	KindParent    = "parent"
)

// 文档注释：缺失的列/属性/上级区域
// 背景：可恢复错误；调用方据 Options 让用户选择替代项后重试。
type MissingError struct {
	Kind    string
	Name    string
	Options []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s %q not found; available: %s", e.Kind, e.Name, strings.Join(e.Options, ", "))
}

// MalformedBreaksError：手动断点无法解析；调用方保留上一次有效断点
type MalformedBreaksError struct {
	Input string
	Token string
}

func (e *MalformedBreaksError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("malformed breakpoints %q", e.Input)
	}
	return fmt.Sprintf("malformed breakpoints %q: bad value %q", e.Input, e.Token)
}

var (
	ErrUnknownPalette = errors.New("unknown palette")
	ErrNoRegions      = errors.New("no regions after filtering")
	ErrUnknownMode    = errors.New("unknown classification mode")
)

// 警告类别
const (
	WarnDegenerate      = "degenerate_classification"
	WarnMalformedBreaks = "malformed_breaks"
	WarnParentMissing   = "parent_attribute_missing"
	WarnSkippedRows     = "skipped_rows"
	WarnDroppedPoints   = "dropped_points"
	WarnSkippedFeatures = "skipped_features"
	WarnNoData          = "no_data"
)

// Warning：随结果返回给用户的提示，不中断管线
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// IsRecoverable：是否属于需要用户修正输入的错误（缺失项或断点格式）
func IsRecoverable(err error) bool {
	var me *MissingError
	var be *MalformedBreaksError
	return errors.As(err, &me) || errors.As(err, &be) || errors.Is(err, ErrUnknownPalette) || errors.Is(err, ErrUnknownMode)
}
