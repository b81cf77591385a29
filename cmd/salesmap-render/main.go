// 离线渲染工具：读取点表与边界文件，运行与服务端相同的管线，输出汇总表、静态图片与地图负载
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salesmap/internal/choropleth"
	"salesmap/internal/config"
	"salesmap/internal/logger"
	"salesmap/internal/render"
	"salesmap/internal/spatial"
	"salesmap/internal/tabular"
)

type options struct {
	Points     string
	Regions    string
	Lon        string
	Lat        string
	Measure    string
	ParentAttr string
	Parent     string
	Key        string
	Palette    string
	Mode       string
	Breaks     string
	Cuts       string
	Out        string
	GeoJSON    string
	BBox       string
	Width      int
}

// missingFlag：缺失项类别对应的命令行参数，用于错误提示
var missingFlag = map[string]string{
	choropleth.KindColumn:    "--lon/--lat/--measure",
	choropleth.KindAttribute: "--key",
	choropleth.KindParent:    "--parent",
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	p := cfg.Pipeline
	opt := options{}
	cmd := &cobra.Command{
		Use:          "salesmap-render",
		Short:        "Render a regional sales choropleth from a points sheet and a boundary file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cfg, opt)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opt.Points, "points", "", "points sheet (.xlsx/.csv) (required)")
	f.StringVar(&opt.Regions, "regions", "", "boundary file (.geojson or zipped shapefile) (required)")
	f.StringVar(&opt.Lon, "lon", p.LonColumn, "longitude column")
	f.StringVar(&opt.Lat, "lat", p.LatColumn, "latitude column")
	f.StringVar(&opt.Measure, "measure", p.MeasureColumn, "measure column")
	f.StringVar(&opt.ParentAttr, "parent-attr", p.ParentAttr, "attribute used for the top-level filter")
	f.StringVar(&opt.Parent, "parent", "", "top-level region to show; '*' for all, empty for the first")
	f.StringVar(&opt.Key, "key", p.KeyAttr, "region name attribute (join key)")
	f.StringVar(&opt.Palette, "palette", p.Palette, "palette name; append _r to reverse")
	f.StringVar(&opt.Mode, "mode", string(choropleth.ModeQuantile), "classification: quantile|manual")
	f.StringVar(&opt.Breaks, "breaks", "", "manual breakpoints, comma separated")
	f.StringVar(&opt.Cuts, "cuts", "", "quantile cuts in percent, comma separated")
	f.StringVar(&opt.Out, "out", "", "write a static map; format from extension (.png/.svg/.pdf)")
	f.StringVar(&opt.GeoJSON, "geojson", "", "write the map payload as GeoJSON")
	f.StringVar(&opt.BBox, "bbox", "", "visible extent minLon,minLat,maxLon,maxLat")
	f.IntVar(&opt.Width, "width", p.ExportWidthPx, "image width in pixels")
	_ = cmd.MarkFlagRequired("points")
	_ = cmd.MarkFlagRequired("regions")
	return cmd
}

func readInputs(opt options) (*tabular.Table, *spatial.Layer, error) {
	pdata, err := os.ReadFile(opt.Points)
	if err != nil {
		return nil, nil, err
	}
	tb, err := tabular.DefaultRegistry().Read(opt.Points, pdata)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opt.Points, err)
	}
	rdata, err := os.ReadFile(opt.Regions)
	if err != nil {
		return nil, nil, err
	}
	layer, err := spatial.DefaultRegistry().Load(opt.Regions, rdata)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opt.Regions, err)
	}
	return tb, layer, nil
}

// hint：缺失项错误附带可选项与对应参数
func hint(err error) error {
	var me *choropleth.MissingError
	if errors.As(err, &me) {
		return fmt.Errorf("%w\nre-run with %s set to one of the available values", err, missingFlag[me.Kind])
	}
	return err
}

func run(ctx context.Context, w io.Writer, cfg *config.Config, opt options) error {
	l := logger.L()
	tb, layer, err := readInputs(opt)
	if err != nil {
		return err
	}
	pts, rep, err := choropleth.ExtractPoints(tb, choropleth.Columns{Lon: opt.Lon, Lat: opt.Lat, Measure: opt.Measure})
	if err != nil {
		return hint(err)
	}
	mode, err := choropleth.ParseMode(opt.Mode)
	if err != nil {
		return err
	}
	cuts, err := config.ParseCuts(opt.Cuts)
	if err != nil {
		return fmt.Errorf("bad --cuts: %w", err)
	}
	if cuts == nil {
		cuts = cfg.Pipeline.QuantileCuts
	}
	noData, err := choropleth.ParseHex(cfg.Pipeline.NoDataColor)
	if err != nil {
		noData = choropleth.DefaultNoData
	}
	res, err := choropleth.Run(ctx, choropleth.Input{
		Points: pts,
		Report: rep,
		Layer:  layer,
		View: choropleth.View{
			ParentAttr: opt.ParentAttr,
			Parent:     opt.Parent,
			KeyAttr:    opt.Key,
			Palette:    opt.Palette,
			Mode:       mode,
			Cuts:       cuts,
			Breaks:     opt.Breaks,
		},
		NoData: noData,
	})
	if err != nil {
		return hint(err)
	}
	l.Debug("render_done", "regions", len(res.Aggregation.Regions), "warnings", len(res.Warnings))
	printSummary(w, res)

	style := render.Style{FillOpacity: cfg.Pipeline.FillOpacity, LineOpacity: cfg.Pipeline.LineOpacity}
	if opt.Out != "" {
		if err := writeImage(res, opt, style); err != nil {
			return err
		}
		fmt.Fprintf(w, "map written to %s\n", opt.Out)
	}
	if opt.GeoJSON != "" {
		f, err := os.Create(opt.GeoJSON)
		if err != nil {
			return err
		}
		if err := render.WriteMap(f, res, style); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(w, "payload written to %s\n", opt.GeoJSON)
	}
	return nil
}

func writeImage(res *choropleth.Result, opt options, style render.Style) error {
	eo := render.ExportOptions{
		Format:  strings.TrimPrefix(strings.ToLower(filepath.Ext(opt.Out)), "."),
		WidthPx: opt.Width,
		Title:   res.View.Parent,
		Style:   style,
	}
	if res.View.Parent == choropleth.AllRegions {
		eo.Title = "All regions"
	}
	if opt.BBox != "" {
		b, err := render.ParseBBox(opt.BBox)
		if err != nil {
			return err
		}
		eo.BBox = &b
	}
	f, err := os.Create(opt.Out)
	if err != nil {
		return err
	}
	if err := render.Export(f, res, eo); err != nil {
		_ = f.Close()
		_ = os.Remove(opt.Out)
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, res *choropleth.Result) {
	st := res.Stats
	for _, wn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", wn.Message)
	}
	fmt.Fprintf(w, "selected: %s\n", res.View.Parent)
	fmt.Fprintf(w, "total: %s (%d regions, %d points matched, %d dropped)\n", st.TotalLabel, st.Regions, st.PointsMatched, st.PointsDropped)
	if len(res.Scale.Breaks) > 0 {
		labels := make([]string, len(res.Scale.Breaks))
		for i, b := range res.Scale.Breaks {
			labels[i] = choropleth.FormatNumber(b)
		}
		fmt.Fprintf(w, "breaks: %s\n", strings.Join(labels, ", "))
	} else {
		fmt.Fprintln(w, "breaks: continuous")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tregion\tparent\ttotal\t")
	for i, r := range st.Top {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", i+1, r.Name, r.Parent, r.Label)
	}
	_ = tw.Flush()
}

func main() {
	config.LoadEnvFiles()
	logger.Setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
