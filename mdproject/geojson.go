package mdproject

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON reads the point features of a GeoJSON FeatureCollection as
// locations. The label ID is the feature id, or its "id" property when the
// feature has none. The title is the "title" property, falling back to "name".
func ParseGeoJSON(b []byte) ([]Location, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	locs := make([]Location, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: unsupported geometry %s, expected Point", i, geometryType(f.Geometry))
		}
		id, ok := featureID(f)
		if !ok {
			return nil, fmt.Errorf("feature %d: missing integer id", i)
		}
		locs = append(locs, Location{
			ID:    id,
			Title: featureTitle(f),
			Lng:   p.Lon(),
			Lat:   p.Lat(),
		})
	}
	return locs, nil
}

func featureID(f *geojson.Feature) (int, bool) {
	if f.ID != nil {
		return toInt(f.ID)
	}
	return toInt(f.Properties["id"])
}

func featureTitle(f *geojson.Feature) string {
	for _, k := range []string{"title", "name"} {
		if s, ok := f.Properties[k].(string); ok {
			return s
		}
	}
	return ""
}

func toInt(v interface{}) (int, bool) {
	switch v := v.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	}
	return 0, false
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
