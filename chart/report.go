package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/geohead/incidentdash/aggregate"
)

const (
	pageWidth  = 8.5 * vg.Inch
	pageHeight = 11 * vg.Inch
	pdfMargin  = 0.75 * vg.Inch
	lineHeight = 0.28 * vg.Inch
)

// Report is a printable dashboard: a summary page followed by one page per
// chart.
type Report struct {
	Title     string
	Source    string
	Generated time.Time
	Filters   []string
	Summary   aggregate.Summary
	Charts    []Spec
}

// WriteReport renders r as a PDF and stamps the filter selection into the
// document properties.
func WriteReport(w io.Writer, r Report) error {
	c := vgpdf.New(pageWidth, pageHeight)
	drawSummaryPage(c, r)

	for _, s := range r.Charts {
		p, err := Plot(s)
		if err != nil {
			return err
		}
		c.NextPage()
		dc := draw.New(c)
		area := draw.Crop(dc, pdfMargin, -pdfMargin, pdfMargin, -pdfMargin)
		// Charts use the top half of the page.
		area.Min.Y = area.Max.Y - (area.Max.Y-area.Min.Y)/2
		p.Draw(area)
	}

	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := api.AddProperties(bytes.NewReader(buf.Bytes()), w, reportProperties(r), pdfConfig()); err != nil {
		return fmt.Errorf("stamping report properties: %w", err)
	}
	return nil
}

func reportProperties(r Report) map[string]string {
	props := map[string]string{
		"ReportTitle": r.Title,
		"Dataset":     r.Source,
		"TotalCalls":  strconv.Itoa(r.Summary.TotalCalls),
		"Generated":   r.Generated.Format(time.RFC3339),
	}
	if len(r.Filters) > 0 {
		props["Filters"] = strings.Join(r.Filters, "; ")
	}
	return props
}

var pdfConfOnce sync.Once

// pdfConfig returns an in-memory pdfcpu configuration, keeping pdfcpu away
// from the user's config directory.
func pdfConfig() *model.Configuration {
	pdfConfOnce.Do(func() { model.ConfigPath = "disable" })
	return model.NewDefaultConfiguration()
}

func drawSummaryPage(c *vgpdf.Canvas, r Report) {
	dc := draw.New(c)
	area := draw.Crop(dc, pdfMargin, -pdfMargin, pdfMargin, -pdfMargin)
	x := area.Min.X
	y := area.Max.Y - vg.Points(14)

	fillText(area, plainText(r.Title), vg.Points(16), x, y, color.Black)
	y -= 0.4 * vg.Inch
	if r.Source != "" {
		fillText(area, "Source: "+r.Source, vg.Points(10), x, y, color.Gray{Y: 100})
		y -= lineHeight
	}
	if !r.Generated.IsZero() {
		fillText(area, "Generated: "+r.Generated.Format("2006-01-02 15:04 MST"), vg.Points(10), x, y, color.Gray{Y: 100})
		y -= lineHeight
	}

	y -= lineHeight / 2
	fillText(area, "Filters", vg.Points(12), x, y, color.Black)
	y -= 4
	strokeHLine(area, x, area.Max.X, y, color.Gray{Y: 180})
	y -= lineHeight
	for _, f := range r.Filters {
		fillText(area, plainText(f), vg.Points(10), x, y, color.Black)
		y -= lineHeight
	}

	y -= lineHeight / 2
	fillText(area, "Quick stats", vg.Points(12), x, y, color.Black)
	y -= 4
	strokeHLine(area, x, area.Max.X, y, color.Gray{Y: 180})
	y -= lineHeight
	for _, line := range SummaryLines(r.Summary) {
		fillText(area, line, vg.Points(10), x, y, color.Black)
		y -= lineHeight
	}
}

// SummaryLines formats quick stats one per line.
func SummaryLines(s aggregate.Summary) []string {
	lines := []string{"Total calls: " + formatCount(s.TotalCalls)}
	if s.TotalCalls == 0 {
		return lines
	}
	lines = append(lines,
		"First call: "+s.First.Format("2006-01-02 15:04"),
		"Latest call: "+s.Last.Format("2006-01-02 15:04"),
		"Calls on latest day: "+formatCount(s.LatestDay),
		"Calls in latest month: "+formatCount(s.LatestMonth),
		"Calls in latest year: "+formatCount(s.LatestYear),
	)
	if s.AverageAge != nil {
		lines = append(lines, "Average age: "+strconv.FormatFloat(*s.AverageAge, 'f', 1, 64))
	}
	return lines
}

func formatCount(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		sb.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

func fillText(c draw.Canvas, txt string, size vg.Length, x, y vg.Length, clr color.Color) {
	sty := draw.TextStyle{
		Color:   clr,
		Font:    plot.DefaultFont,
		Handler: plot.DefaultTextHandler,
	}
	sty.Font.Size = size
	c.FillText(sty, vg.Point{X: x, Y: y}, txt)
}

func strokeHLine(c draw.Canvas, x0, x1, y vg.Length, clr color.Color) {
	c.StrokeLine2(draw.LineStyle{
		Color: clr,
		Width: vg.Points(0.5),
	}, x0, y, x1, y)
}
