// Package plot collects benchmark series and renders them for a
// terminal or as CSV.
package plot

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SeriesSink receives one point of a labelled line series.
type SeriesSink interface {
	Point(label string, x, y float64)
}

// BarSink receives one labelled bar.
type BarSink interface {
	Bar(label string, value float64)
}

// Point is one (x, y) sample.
type Point struct {
	X float64
	Y float64
}

// Series is an ordered list of points sharing a label.
type Series struct {
	Label  string
	Points []Point
}

// Bar is one labelled value.
type Bar struct {
	Label string
	Value float64
}

// Chart records series and bars in the order they arrive. It satisfies
// both SeriesSink and BarSink.
type Chart struct {
	Title  string
	XLabel string
	YLabel string

	series []Series
	index  map[string]int
	bars   []Bar
}

// NewChart returns an empty chart.
func NewChart(title, xLabel, yLabel string) *Chart {
	return &Chart{
		Title:  title,
		XLabel: xLabel,
		YLabel: yLabel,
		index:  make(map[string]int),
	}
}

// Point appends (x, y) to the series named label. A nil chart discards
// samples.
func (c *Chart) Point(label string, x, y float64) {
	if c == nil {
		return
	}

	i, ok := c.index[label]
	if !ok {
		i = len(c.series)
		c.index[label] = i
		c.series = append(c.series, Series{Label: label})
	}

	c.series[i].Points = append(c.series[i].Points, Point{X: x, Y: y})
}

// Bar appends a bar.
func (c *Chart) Bar(label string, value float64) {
	if c == nil {
		return
	}

	c.bars = append(c.bars, Bar{Label: label, Value: value})
}

// Series returns the recorded series.
func (c *Chart) Series() []Series {
	return append([]Series(nil), c.series...)
}

// Bars returns the recorded bars.
func (c *Chart) Bars() []Bar {
	return append([]Bar(nil), c.bars...)
}

const barWidth = 40

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Render draws bars as horizontal bars scaled to the largest value and
// lists each series point by point.
func (c *Chart) Render(w io.Writer) error {
	var sb strings.Builder

	if c.Title != "" {
		sb.WriteString(titleStyle.Render(c.Title) + "\n")
	}

	if len(c.bars) > 0 {
		labelWidth := 0
		peak := 0.0

		for _, b := range c.bars {
			labelWidth = max(labelWidth, lipgloss.Width(b.Label))
			peak = math.Max(peak, b.Value)
		}

		lbl := labelStyle.Width(labelWidth).Align(lipgloss.Right).MarginRight(1)

		for _, b := range c.bars {
			n := 0
			if peak > 0 && b.Value > 0 {
				n = max(1, int(math.Round(b.Value/peak*barWidth)))
			}

			sb.WriteString(lbl.Render(b.Label))
			sb.WriteString(barStyle.Render(strings.Repeat("█", n)))
			sb.WriteString(" " + valueStyle.Render(fmt.Sprintf("%.3f", b.Value)) + "\n")
		}
	}

	for _, s := range c.series {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%s (%s → %s)", s.Label, c.XLabel, c.YLabel)) + "\n")

		for _, p := range s.Points {
			sb.WriteString(fmt.Sprintf("  %10.4f  %10.4f\n", p.X, p.Y))
		}
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

// WriteCSV writes one row per point and bar: kind,label,x,y. Bars have
// an empty x.
func (c *Chart) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"kind", "label", "x", "y"}); err != nil {
		return err
	}

	for _, s := range c.series {
		for _, p := range s.Points {
			if err := cw.Write([]string{"point", s.Label, ftoa(p.X), ftoa(p.Y)}); err != nil {
				return err
			}
		}
	}

	for _, b := range c.bars {
		if err := cw.Write([]string{"bar", b.Label, "", ftoa(b.Value)}); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
