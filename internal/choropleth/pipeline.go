package choropleth

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"salesmap/internal/logger"
	"salesmap/internal/metrics"
	"salesmap/internal/spatial"
)

// View：用户可调的视图参数
type View struct {
	ParentAttr string    `json:"parent_attr"`
	Parent     string    `json:"parent"`
	KeyAttr    string    `json:"key_attr"`
	Palette    string    `json:"palette"`
	Mode       Mode      `json:"mode"`
	Cuts       []float64 `json:"cuts,omitempty"`
	Breaks     string    `json:"breaks,omitempty"`
}

// Input：一次管线运行的全部输入；PriorBreaks 为上一次有效的手动断点，Report 为点表读取统计（可为空）
type Input struct {
	Points      []PointRecord
	Report      *PointReport
	Layer       *spatial.Layer
	View        View
	PriorBreaks []float64
	NoData      color.NRGBA
}

// Result：管线输出，交互地图与静态导出共用
type Result struct {
	View           View
	Normalized     *Normalized
	Aggregation    *Aggregation
	Classification *Classification
	Scale          *Scale
	Legend         Legend
	Stats          Stats
	Warnings       []Warning
	// BreaksRejected：手动断点解析失败，沿用了 PriorBreaks
	BreaksRejected bool
}

// 文档注释：执行完整管线（归一化 → 空间汇总 → 分级 → 色阶）
// 背景：每次交互都从不可变输入重新计算，阶段之间只传值，不依赖全局状态。
// 约束：缺失项、未知色带、未知分级方式以错误返回（可恢复）；手动断点格式错误不返回错误，
// 而是沿用 PriorBreaks 并附带警告；分级退化时自动退回连续色阶。
func Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	res, err := run(ctx, in)
	metrics.PipelineDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if IsRecoverable(err) {
			outcome = "prompt"
		}
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome).Inc()
	return res, err
}

func run(ctx context.Context, in Input) (*Result, error) {
	l := logger.L()
	view := in.View
	if view.Palette == "" {
		view.Palette = "YlOrRd"
	}
	if view.Mode == "" {
		view.Mode = ModeQuantile
	}
	if len(view.Cuts) == 0 {
		view.Cuts = DefaultCuts
	}
	pal, err := LookupPalette(view.Palette)
	if err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(view.Mode)); err != nil {
		return nil, err
	}
	noData := in.NoData
	if noData == (color.NRGBA{}) {
		noData = DefaultNoData
	}

	t := time.Now()
	norm, err := Normalize(in.Points, in.Layer, NormalizeOptions{ParentAttr: view.ParentAttr, Parent: view.Parent, KeyAttr: view.KeyAttr})
	if err != nil {
		return nil, err
	}
	observeStage("normalize", t)
	view.Parent = norm.SelectedParent
	view.ParentAttr = norm.ParentAttr
	view.KeyAttr = norm.KeyAttr
	res := &Result{View: view, Normalized: norm}
	if w := in.Report.Warning(); w != nil {
		res.Warnings = append(res.Warnings, *w)
	}
	res.Warnings = append(res.Warnings, norm.Warnings...)

	t = time.Now()
	agg, err := Aggregate(ctx, norm.Points, norm.Regions)
	if err != nil {
		return nil, err
	}
	observeStage("aggregate", t)
	metrics.PointsMatchedTotal.Add(float64(agg.Matched))
	metrics.PointsDroppedTotal.Add(float64(agg.Dropped))
	res.Aggregation = agg
	if agg.Dropped > 0 {
		res.Warnings = append(res.Warnings, Warning{Kind: WarnDroppedPoints, Message: fmt.Sprintf("%d points fell outside every region and were ignored", agg.Dropped)})
	}
	if agg.Matched == 0 {
		res.Warnings = append(res.Warnings, Warning{Kind: WarnNoData, Message: "no points matched the selected regions"})
	}

	t = time.Now()
	values := agg.Totals()
	cls, err := Classify(values, view.Mode, view.Breaks, view.Cuts)
	var be *MalformedBreaksError
	if errors.As(err, &be) {
		res.BreaksRejected = true
		res.Warnings = append(res.Warnings, Warning{Kind: WarnMalformedBreaks, Message: be.Error() + "; keeping the previous breakpoints"})
		cls = fromPrior(in.PriorBreaks, values)
		metrics.ClassifyFallbackTotal.WithLabelValues("malformed").Inc()
	} else if err != nil {
		return nil, err
	}
	observeStage("classify", t)
	if cls.Continuous() && !res.BreaksRejected {
		metrics.ClassifyFallbackTotal.WithLabelValues("degenerate").Inc()
	}
	res.Warnings = append(res.Warnings, cls.Warnings...)
	res.Classification = cls
	res.Scale = NewScale(pal, cls, noData)
	res.Legend = res.Scale.Legend()
	res.Stats = ComputeStats(agg)
	l.Debug("pipeline_done",
		"regions", len(agg.Regions),
		"matched", agg.Matched,
		"dropped", agg.Dropped,
		"breaks", len(cls.Breaks),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// fromPrior：以上一次有效断点重建分级；无有效断点时为连续色阶
func fromPrior(prior []float64, values []float64) *Classification {
	c := &Classification{}
	if len(values) > 0 {
		c.Min, c.Max = values[0], values[0]
		for _, v := range values {
			if v < c.Min {
				c.Min = v
			}
			if v > c.Max {
				c.Max = v
			}
		}
	}
	if b := NormalizeBreaks(prior, values); len(b) >= MinBreaks {
		c.Breaks = b
	}
	return c
}

func observeStage(stage string, t time.Time) {
	metrics.StageDurationMs.WithLabelValues(stage).Observe(float64(time.Since(t).Milliseconds()))
}
