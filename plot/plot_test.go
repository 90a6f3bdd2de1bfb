package plot

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartRecordsInOrder(t *testing.T) {
	c := NewChart("write", "GB", "GBps")

	c.Point("b", 1, 10)
	c.Point("a", 1, 20)
	c.Point("b", 2, 11)
	c.Bar("b", 10.5)
	c.Bar("a", 20)

	series := c.Series()
	require.Len(t, series, 2)
	assert.Equal(t, "b", series[0].Label)
	assert.Equal(t, []Point{{1, 10}, {2, 11}}, series[0].Points)
	assert.Equal(t, "a", series[1].Label)

	assert.Equal(t, []Bar{{"b", 10.5}, {"a", 20}}, c.Bars())
}

func TestRender(t *testing.T) {
	c := NewChart("Average write bandwidth", "GB", "GBps")
	c.Bar("Zarr V2", 2)
	c.Bar("OME Zarr", 1)
	c.Bar("Zarr V3", 0)
	c.Point("Zarr V2", 0.001, 2)

	var buf bytes.Buffer
	require.NoError(t, c.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "Average write bandwidth")
	assert.Contains(t, out, "Zarr V2")
	assert.Contains(t, out, "OME Zarr")
	assert.Contains(t, out, strings.Repeat("█", barWidth))
	assert.Contains(t, out, "2.000")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewChart("", "", "").Render(&buf))
	assert.Empty(t, buf.String())
}

func TestWriteCSV(t *testing.T) {
	c := NewChart("", "GB", "GBps")
	c.Point("Zarr V2", 0.5, 1.25)
	c.Bar("Zarr V2", 1.25)

	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"kind", "label", "x", "y"},
		{"point", "Zarr V2", "0.5", "1.25"},
		{"bar", "Zarr V2", "", "1.25"},
	}, rows)
}

func TestNilChartDiscards(t *testing.T) {
	var c *Chart

	require.NotPanics(t, func() {
		c.Point("a", 1, 2)
		c.Bar("a", 3)
	})
}
