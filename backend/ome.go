package backend

import "fmt"

// OME-NGFF 0.4 image metadata, single resolution level.

type omeAxis struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Unit string `json:"unit,omitempty"`
}

type omeTransform struct {
	Type  string    `json:"type"`
	Scale []float64 `json:"scale"`
}

type omeDataset struct {
	Path                      string         `json:"path"`
	CoordinateTransformations []omeTransform `json:"coordinateTransformations"`
}

type omeMultiscale struct {
	Version  string       `json:"version"`
	Name     string       `json:"name"`
	Axes     []omeAxis    `json:"axes"`
	Datasets []omeDataset `json:"datasets"`
}

type omeAttrs struct {
	Multiscales []omeMultiscale `json:"multiscales"`
}

const omeDatasetPath = "0"

var omeAxes = []omeAxis{
	{Name: "t", Type: "time"},
	{Name: "c", Type: "channel"},
	{Name: "z", Type: "space", Unit: "micrometer"},
	{Name: "y", Type: "space", Unit: "micrometer"},
	{Name: "x", Type: "space", Unit: "micrometer"},
}

// omeImageAttrs names the trailing axes of tczyx for an image of the
// given rank.
func omeImageAttrs(rank int) (any, error) {
	if rank < 2 || rank > len(omeAxes) {
		return nil, fmt.Errorf("OME-NGFF images need 2 to %d dimensions, got %d",
			len(omeAxes), rank)
	}

	scale := make([]float64, rank)
	for i := range scale {
		scale[i] = 1
	}

	return omeAttrs{
		Multiscales: []omeMultiscale{{
			Version: "0.4",
			Name:    "benchmark",
			Axes:    omeAxes[len(omeAxes)-rank:],
			Datasets: []omeDataset{{
				Path: omeDatasetPath,
				CoordinateTransformations: []omeTransform{{
					Type:  "scale",
					Scale: scale,
				}},
			}},
		}},
	}, nil
}
