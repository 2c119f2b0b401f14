// Package chart turns aggregate tables into declarative chart descriptions
// and renders them with gonum/plot.
package chart

import (
	"github.com/geohead/incidentdash/aggregate"
)

// Kind is the chart type.
type Kind string

const (
	Bar        Kind = "bar"
	GroupedBar Kind = "grouped_bar"
	Pie        Kind = "pie"
)

// Accent is the single-series colour.
const Accent = "#ed1b2e"

// Palette colours the series of grouped charts, in order.
var Palette = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// CountAxis is the value axis label of every chart.
const CountAxis = "Num of calls"

// Style is the fixed presentation shared by all charts.
type Style struct {
	PlotBackground  string `json:"plot_bgcolor"`
	PaperBackground string `json:"paper_bgcolor"`
	ValueFormat     string `json:"value_format"`
	TextPosition    string `json:"text_position"`
	FontSize        int    `json:"font_size"`
	ShowLegend      bool   `json:"show_legend"`
	ShowGrid        bool   `json:"show_grid"`
}

func defaultStyle(kind Kind) Style {
	return Style{
		PlotBackground:  "rgba(0, 0, 0, 0)",
		PaperBackground: "rgba(248, 248, 248, 1)",
		ValueFormat:     ".3s",
		TextPosition:    "inside",
		FontSize:        12,
		ShowLegend:      kind != Bar,
		ShowGrid:        kind != Pie,
	}
}

// Series is one named sequence of values aligned with Spec.Labels.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Color  string    `json:"color"`
}

// Spec is a renderer-independent chart description.
type Spec struct {
	ID     string   `json:"id"`
	Kind   Kind     `json:"kind"`
	Title  string   `json:"title"`
	XAxis  string   `json:"x_axis,omitempty"`
	YAxis  string   `json:"y_axis,omitempty"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
	Style  Style    `json:"style"`
}

// Empty reports whether the chart has nothing to draw.
func (s Spec) Empty() bool {
	for _, ser := range s.Series {
		for _, v := range ser.Values {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// FromTable describes a single-key table as a bar or pie chart. Labels keep
// the table's order.
func FromTable(id, title, xAxis string, kind Kind, t aggregate.Table) Spec {
	labels := make([]string, len(t.Entries))
	values := make([]float64, len(t.Entries))
	for i, e := range t.Entries {
		labels[i] = e.Key
		values[i] = float64(e.Count)
	}
	s := Spec{
		ID:     id,
		Kind:   kind,
		Title:  title,
		Labels: labels,
		Series: []Series{{Name: CountAxis, Values: values, Color: Accent}},
		Style:  defaultStyle(kind),
	}
	if kind != Pie {
		s.XAxis = xAxis
		s.YAxis = CountAxis
	}
	return s
}

// FromCrossTable describes a cross table as a grouped bar chart: one group
// per first key and one series per second key. Combinations missing from
// the table are drawn as zero.
func FromCrossTable(id, title, xAxis string, t aggregate.CrossTable) Spec {
	labels := t.Keys1()
	keys2 := t.Keys2()

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	series := make([]Series, len(keys2))
	pos := make(map[string]int, len(keys2))
	for i, k := range keys2 {
		pos[k] = i
		series[i] = Series{
			Name:   k,
			Values: make([]float64, len(labels)),
			Color:  Palette[i%len(Palette)],
		}
	}
	for _, e := range t.Entries {
		series[pos[e.Key2]].Values[index[e.Key1]] = float64(e.Count)
	}

	return Spec{
		ID:     id,
		Kind:   GroupedBar,
		Title:  title,
		XAxis:  xAxis,
		YAxis:  CountAxis,
		Labels: labels,
		Series: series,
		Style:  defaultStyle(GroupedBar),
	}
}

// Chart ids for the standard dashboard.
const (
	IDRegion          = aggregate.CallsRegion
	IDCounty          = aggregate.CallsCounty
	IDPurpose         = aggregate.CallsPurpose
	IDGender          = aggregate.CallsGender
	IDPurposeGender   = aggregate.PurposeGender
	IDRegionGender    = aggregate.RegionGender
	IDStatus          = aggregate.StatusDist
	IDIntervention    = aggregate.CallsIntervention
	IDInterventionPie = aggregate.CallsIntervention + "_pie"
)

// Standard returns the dashboard's nine charts in display order.
func Standard(t aggregate.Tables) []Spec {
	return []Spec{
		FromTable(IDRegion, "Calls per region", "region", Bar, t.Region),
		FromTable(IDCounty, "Calls per county", "county", Bar, t.County),
		FromTable(IDPurpose, "Calls by purpose", "purpose", Bar, t.Purpose),
		FromTable(IDGender, "Calls by gender", "gender", Pie, t.Gender),
		FromCrossTable(IDPurposeGender, "Distribution by purpose and gender", "purpose", t.PurposeGender),
		FromCrossTable(IDRegionGender, "Distribution by region and gender", "region", t.RegionGender),
		FromTable(IDStatus, "Status of calls", "status", Pie, t.Status),
		FromTable(IDIntervention, "Interventions applied", "interventions", Bar, t.Intervention),
		FromTable(IDInterventionPie, "Interventions applied", "interventions", Pie, t.Intervention),
	}
}

// Find returns the spec with the given id.
func Find(specs []Spec, id string) (Spec, bool) {
	for _, s := range specs {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}
