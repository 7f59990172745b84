package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPositionJSON(t *testing.T) {
	data, err := json.Marshal(GeoPosition{Lat: 55.7558, Lon: 37.6176})
	require.NoError(t, err)
	assert.JSONEq(t, `["55.7558","37.6176"]`, string(data))

	var decoded GeoPosition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, GeoPosition{Lat: 55.7558, Lon: 37.6176}, decoded)
}

func TestSiteLinksJSONIsSorted(t *testing.T) {
	links := SiteLinks{
		"ruwiki": "Киевская",
		"enwiki": "Kiyevskaya",
	}

	data, err := json.Marshal(links)
	require.NoError(t, err)
	assert.Equal(t, `[{"enwiki":"Kiyevskaya"},{"ruwiki":"Киевская"}]`, string(data))

	var decoded SiteLinks
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, links, decoded)
}

func TestStationJSONShape(t *testing.T) {
	station := Station{
		ID:          "q2/q11",
		Line:        "q2",
		Names:       map[string]string{"en": "Central"},
		Connections: []Connection{{To: "q2/q10", Type: ConnectionAdjacent}},
		SiteLinks:   SiteLinks{},
	}

	data, err := json.Marshal(station)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Contains(t, decoded, "open_time", "open_time is always present")
	assert.NotContains(t, decoded, "geo_positions", "absent coordinates stay absent")
	assert.Equal(t, []any{map[string]any{"to": "q2/q10", "type": "adjacent"}}, decoded["connections"])
}
