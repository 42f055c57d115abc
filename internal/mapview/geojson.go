package mapview

// FeatureCollection is a GeoJSON (RFC 7946) layer of markers
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON point
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a GeoJSON point geometry; coordinates are [lon, lat]
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// GeoJSON exports the map's markers
func (m Map) GeoJSON() FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(m.Markers))}
	for _, mk := range m.Markers {
		props := map[string]any{
			"key":          mk.Key,
			"kind":         string(mk.Kind),
			"marker-color": mk.Color,
			"title":        mk.Title,
		}
		if mk.Description != "" {
			props["description"] = mk.Description
		}
		if mk.DiscoveryID != 0 {
			props["discovery_id"] = mk.DiscoveryID
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: [2]float64{mk.Longitude, mk.Latitude}},
			Properties: props,
		})
	}
	return fc
}
