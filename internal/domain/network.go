package domain

import (
	"encoding/json"
	"sort"
	"strconv"
)

// ConnectionType distinguishes same-line adjacency from cross-line transfer
type ConnectionType string

const (
	ConnectionAdjacent ConnectionType = "adjacent"
	ConnectionTransfer ConnectionType = "transfer"
)

// Connection is a directed edge to another station of the resolved network.
// To always names a station present in the output document.
type Connection struct {
	To   string         `json:"to"`
	Type ConnectionType `json:"type"`
}

// GeoPosition is a latitude/longitude pair. It serializes as a two-element
// array of decimal strings.
type GeoPosition struct {
	Lat float64
	Lon float64
}

func (g GeoPosition) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{
		strconv.FormatFloat(g.Lat, 'f', -1, 64),
		strconv.FormatFloat(g.Lon, 'f', -1, 64),
	})
}

func (g *GeoPosition) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(pair[0], 64)
	if err != nil {
		return err
	}
	lon, err := strconv.ParseFloat(pair[1], 64)
	if err != nil {
		return err
	}
	g.Lat, g.Lon = lat, lon
	return nil
}

// SiteLinks maps an external site name to the linked page title. It
// serializes as a site-name-sorted list of single-entry objects.
type SiteLinks map[string]string

func (s SiteLinks) MarshalJSON() ([]byte, error) {
	sites := make([]string, 0, len(s))
	for site := range s {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	entries := make([]map[string]string, 0, len(sites))
	for _, site := range sites {
		entries = append(entries, map[string]string{site: s[site]})
	}
	return json.Marshal(entries)
}

func (s *SiteLinks) UnmarshalJSON(data []byte) error {
	var entries []map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	links := make(SiteLinks)
	for _, entry := range entries {
		for site, title := range entry {
			links[site] = title
		}
	}
	*s = links
	return nil
}

// Station is one transport station owned by exactly one line
type Station struct {
	ID          string            `json:"id"`
	Line        string            `json:"line"`
	Names       map[string]string `json:"names"`
	OpenTime    string            `json:"open_time"`
	Geo         *GeoPosition      `json:"geo_positions,omitempty"`
	Connections []Connection      `json:"connections"`
	SiteLinks   SiteLinks         `json:"site_links"`
}

// Line is one transport route of the system
type Line struct {
	ID    string            `json:"id"`
	Names map[string]string `json:"names"`
	Color string            `json:"color,omitempty"`
}

// Document is the final normalized description of a transit network.
// Station and line order is first-discovery order and is reproducible.
type Document struct {
	ID       string     `json:"id"`
	Stations []*Station `json:"stations"`
	Lines    []*Line    `json:"lines"`
}
