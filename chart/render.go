package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Default image size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// blankLabel stands in for empty category values on axes and legends.
const blankLabel = "(blank)"

// Plot builds a gonum plot for s. Empty charts get a title and no axes.
func Plot(s Spec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = plainText(s.Title)
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.BackgroundColor = parseColor(s.Style.PaperBackground, color.White)

	if s.Empty() {
		p.HideAxes()
		return p, nil
	}

	switch s.Kind {
	case Bar, GroupedBar:
		if err := addBars(p, s); err != nil {
			return nil, err
		}
	case Pie:
		addPie(p, s)
	default:
		return nil, fmt.Errorf("unsupported chart kind %q", s.Kind)
	}
	return p, nil
}

// WritePNG renders s as a PNG image.
func WritePNG(w io.Writer, s Spec, width, height vg.Length) error {
	p, err := Plot(s)
	if err != nil {
		return err
	}
	c := vgimg.New(width, height)
	p.Draw(draw.New(c))
	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}

// WriteImage renders s in any format gonum/plot supports ("png", "svg",
// "pdf", "jpg", ...).
func WriteImage(w io.Writer, s Spec, format string, width, height vg.Length) error {
	p, err := Plot(s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func addBars(p *plot.Plot, s Spec) error {
	if s.Style.ShowGrid {
		grid := plotter.NewGrid()
		grid.Vertical.Color = nil
		p.Add(grid)
	}

	n := len(s.Series)
	group := (DefaultWidth - vg.Inch) / vg.Length(len(s.Labels)) * 0.8
	if group > 48 {
		group = 48
	}
	width := group / vg.Length(n)

	for i, ser := range s.Series {
		bars, err := plotter.NewBarChart(plotter.Values(ser.Values), width)
		if err != nil {
			return fmt.Errorf("chart %s: %w", s.ID, err)
		}
		bars.Color = parseColor(ser.Color, color.Black)
		bars.LineStyle.Width = 0
		bars.Offset = width * vg.Length(float64(i)-float64(n-1)/2)
		p.Add(bars)
		if s.Style.ShowLegend {
			p.Legend.Add(displayLabel(ser.Name), bars)
		}
	}
	p.Legend.Top = true

	labels := make([]string, len(s.Labels))
	for i, l := range s.Labels {
		labels[i] = displayLabel(l)
	}
	p.NominalX(labels...)
	if len(labels) > 8 {
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
	p.X.Label.Text = s.XAxis
	p.Y.Label.Text = s.YAxis
	p.Y.Min = 0
	p.Y.Tick.Marker = countTicks{}
	return nil
}

func addPie(p *plot.Plot, s Spec) {
	ser := s.Series[0]
	base := parseColor(ser.Color, color.Black)
	pc := &pieChart{values: ser.Values}
	for i := range ser.Values {
		pc.total += ser.Values[i]
		pc.colors = append(pc.colors, shade(base, i, len(ser.Values)))
	}
	p.HideAxes()
	p.Add(pc)
	for i, l := range s.Labels {
		p.Legend.Add(displayLabel(l), swatch{pc.colors[i]})
	}
	p.Legend.Top = true
}

// pieChart draws wedges counter-clockwise from twelve o'clock, labelled with
// their share of the total.
type pieChart struct {
	values []float64
	colors []color.Color
	total  float64
}

func (pc *pieChart) Plot(c draw.Canvas, _ *plot.Plot) {
	if pc.total <= 0 {
		return
	}
	w, h := c.Max.X-c.Min.X, c.Max.Y-c.Min.Y
	r := min(w, h) / 2 * 0.9
	center := vg.Point{X: c.Min.X + w/2, Y: c.Min.Y + h/2}

	sty := draw.TextStyle{
		Color:   color.White,
		Font:    plot.DefaultFont,
		Handler: plot.DefaultTextHandler,
		XAlign:  draw.XCenter,
		YAlign:  draw.YCenter,
	}
	sty.Font.Size = vg.Points(10)

	start := math.Pi / 2
	for i, v := range pc.values {
		if v <= 0 {
			continue
		}
		share := v / pc.total
		sweep := 2 * math.Pi * share

		var path vg.Path
		path.Move(center)
		path.Line(onCircle(center, r, start))
		path.Arc(center, r, start, sweep)
		path.Close()
		c.SetColor(pc.colors[i])
		c.Fill(path)

		// Slivers stay unlabelled.
		if share >= 0.04 {
			txt := strconv.FormatFloat(share*100, 'f', 1, 64) + "%"
			c.FillText(sty, onCircle(center, r*0.65, start+sweep/2), txt)
		}
		start += sweep
	}
}

func onCircle(center vg.Point, r vg.Length, angle float64) vg.Point {
	return vg.Point{
		X: center.X + r*vg.Length(math.Cos(angle)),
		Y: center.Y + r*vg.Length(math.Sin(angle)),
	}
}

type swatch struct{ color color.Color }

func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.color, c.ClipPolygonY(pts))
}

// countTicks labels only whole numbers.
type countTicks struct{}

func (countTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label == "" {
			continue
		}
		if ticks[i].Value != math.Trunc(ticks[i].Value) {
			ticks[i].Label = ""
			continue
		}
		ticks[i].Label = formatCompact(ticks[i].Value)
	}
	return ticks
}

func formatCompact(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 0, 64) + "k"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

// shade lightens c towards white for the i-th of n slices.
func shade(c color.Color, i, n int) color.Color {
	if n <= 1 {
		return c
	}
	r, g, b, _ := c.RGBA()
	t := 0.7 * float64(i) / float64(n-1)
	mix := func(v uint32) uint8 {
		f := float64(v>>8)/255*(1-t) + t
		return uint8(math.Round(f * 255))
	}
	return color.RGBA{R: mix(r), G: mix(g), B: mix(b), A: 255}
}

// parseColor reads "#rrggbb" or "rgba(r, g, b, a)" and returns def when
// s is neither.
func parseColor(s string, def color.Color) color.Color {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return def
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	}
	if strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[5:len(s)-1], ",")
		if len(parts) != 4 {
			return def
		}
		var ch [3]uint8
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || v < 0 || v > 255 {
				return def
			}
			ch[i] = uint8(v)
		}
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return def
		}
		if a == 0 {
			return color.Transparent
		}
		// color.RGBA is alpha-premultiplied.
		return color.RGBA{
			R: uint8(float64(ch[0]) * a),
			G: uint8(float64(ch[1]) * a),
			B: uint8(float64(ch[2]) * a),
			A: uint8(a * 255),
		}
	}
	return def
}

func displayLabel(s string) string {
	if s == "" {
		return blankLabel
	}
	return plainText(s)
}

// plainText replaces dashes the embedded PDF fonts cannot render.
func plainText(s string) string {
	s = strings.ReplaceAll(s, "\u2014", "-")
	return strings.ReplaceAll(s, "\u2013", "-")
}
