package api

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/diwise/water-network/pkg/types"
)

type meta struct {
	TotalRecords uint64 `json:"totalRecords"`
	Count        uint64 `json:"count"`
}

type ApiResponse struct {
	Meta *meta `json:"meta,omitempty"`
	Data any   `json:"data"`
}

func (r ApiResponse) Byte() []byte {
	b, _ := json.Marshal(r)
	return b
}

func NewApiResponse(data any) ApiResponse {
	return ApiResponse{Data: data}
}

func NewListResponse[T any](items []T) ApiResponse {
	if items == nil {
		items = []T{}
	}

	n := uint64(len(items))

	return ApiResponse{
		Meta: &meta{TotalRecords: n, Count: n},
		Data: items,
	}
}

type ErrorResponse struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

type GeoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
}

func NewFeatureCollection() *GeoJSONFeatureCollection {
	return &GeoJSONFeatureCollection{Type: "FeatureCollection", Features: []GeoJSONFeature{}}
}

type GeoJSONFeature struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Geometry   GeoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// GeoJSONGeometry holds coordinates in longitude, latitude order.
type GeoJSONGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

func NewFeatureCollectionWithDevices(devices []types.Device) *GeoJSONFeatureCollection {
	fc := NewFeatureCollection()
	for _, d := range devices {
		fc.Features = append(fc.Features, newFeature(d.ID, pointGeometry(d.Location), d))
	}
	return fc
}

func NewFeatureCollectionWithGateWalls(gateWalls []types.GateWall) *GeoJSONFeatureCollection {
	fc := NewFeatureCollection()
	for _, g := range gateWalls {
		g.History = nil
		fc.Features = append(fc.Features, newFeature(g.ID, pointGeometry(g.Location), g))
	}
	return fc
}

// NewFeatureCollectionWithPipelines maps every pipeline to a MultiLineString
// with one line per segment.
func NewFeatureCollectionWithPipelines(pipelines []types.Pipeline) *GeoJSONFeatureCollection {
	fc := NewFeatureCollection()

	for _, p := range pipelines {
		lines := [][][2]float64{}
		for _, s := range p.Segments {
			line := [][2]float64{}
			for _, pt := range s {
				line = append(line, [2]float64{pt.Lon(), pt.Lat()})
			}
			lines = append(lines, line)
		}

		fc.Features = append(fc.Features, newFeature(p.ID, GeoJSONGeometry{Type: "MultiLineString", Coordinates: lines}, p))
	}

	return fc
}

func pointGeometry(l types.Location) GeoJSONGeometry {
	return GeoJSONGeometry{
		Type:        "Point",
		Coordinates: [2]float64{l.Longitude, l.Latitude},
	}
}

func newFeature(id string, geometry GeoJSONGeometry, properties any) GeoJSONFeature {
	feature := GeoJSONFeature{
		ID:         id,
		Type:       "Feature",
		Geometry:   geometry,
		Properties: map[string]any{},
	}

	b, err := json.Marshal(properties)
	if err != nil {
		return feature
	}

	m := make(map[string]any)
	if err = json.Unmarshal(b, &m); err != nil {
		return feature
	}

	delete(m, "segments")
	feature.Properties = m

	return feature
}

// writeCsvWithDevices writes devices in the same format that the seed file
// upload accepts.
func writeCsvWithDevices(w io.Writer, devices []types.Device) error {
	header := "entity;id;name;latitude;longitude;altitude;country;state;district;mandal;habitation;kind"
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, d := range devices {
		_, err := fmt.Fprintf(w, "%s;%s;%s;%f;%f;%f;%s;%s;%s;%s;%s;%s\n",
			types.EntityDevice, d.ID, d.Name,
			d.Latitude, d.Longitude, d.Altitude,
			d.Country, d.State, d.District, d.Mandal, d.Habitation,
			d.Kind,
		)
		if err != nil {
			return err
		}
	}

	return nil
}
