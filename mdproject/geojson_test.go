package mdproject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eivindml/marker-dispersion/mdproject"
)

func TestParseGeoJSON(t *testing.T) {
	locs, err := mdproject.ParseGeoJSON([]byte(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [10.66, 59.43]}, "properties": {"title": "Moss"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [10.94, 59.21]}, "properties": {"id": "2", "name": "Fredrikstad"}},
    {"type": "Feature", "id": "3", "geometry": {"type": "Point", "coordinates": [11.39, 59.12]}, "properties": null}
  ]
}`))
	assert.NoError(t, err)
	assert.Equal(t, []mdproject.Location{
		{ID: 1, Title: "Moss", Lng: 10.66, Lat: 59.43},
		{ID: 2, Title: "Fredrikstad", Lng: 10.94, Lat: 59.21},
		{ID: 3, Lng: 11.39, Lat: 59.12},
	}, locs)
}

func TestParseGeoJSONErrors(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		exp  string
	}{
		{
			name: "not_geojson",
			in:   `[1, 2]`,
			exp:  "failed to parse geojson",
		},
		{
			name: "line",
			in:   `{"type": "FeatureCollection", "features": [{"type": "Feature", "id": 1, "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}}]}`,
			exp:  "feature 0: unsupported geometry LineString, expected Point",
		},
		{
			name: "no_id",
			in:   `{"type": "FeatureCollection", "features": [{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"title": "x"}}]}`,
			exp:  "feature 0: missing integer id",
		},
		{
			name: "fractional_id",
			in:   `{"type": "FeatureCollection", "features": [{"type": "Feature", "id": 1.5, "geometry": {"type": "Point", "coordinates": [0, 0]}}]}`,
			exp:  "feature 0: missing integer id",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := mdproject.ParseGeoJSON([]byte(tc.in))
			assert.ErrorContains(t, err, tc.exp)
		})
	}
}
