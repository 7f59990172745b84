package wikidata

import (
	"encoding/json"
	"fmt"
)

// Entity is the normalized attribute bundle of a single Wikidata item.
// Claim values stay in wire form and are decoded lazily through the typed
// Value accessors, so one unparseable statement never poisons the bundle.
type Entity struct {
	ID        string
	Labels    map[string]string
	Claims    map[string][]Statement
	SiteLinks map[string]string
}

// Statements returns the statements for a property, or nil if the entity
// carries none.
func (e *Entity) Statements(property string) []Statement {
	return e.Claims[property]
}

// Statement is a single claim: a main value plus optional qualifiers.
// Value is nil for novalue/somevalue snaks.
type Statement struct {
	Value      *Value
	Qualifiers map[string][]Value
}

// HasQualifier reports whether the statement carries at least one qualifier
// for the given property.
func (s Statement) HasQualifier(property string) bool {
	return len(s.Qualifiers[property]) > 0
}

// Qualifier returns the first qualifier value for a property.
func (s Statement) Qualifier(property string) (Value, bool) {
	values := s.Qualifiers[property]
	if len(values) == 0 {
		return Value{}, false
	}
	return values[0], true
}

// Value is a raw Wikidata datavalue tagged with its wire type.
type Value struct {
	Type string
	Raw  json.RawMessage
}

// ItemID decodes a wikibase-entityid value into its "Q..." identifier.
func (v Value) ItemID() (string, error) {
	if v.Type != "wikibase-entityid" {
		return "", fmt.Errorf("value is %q, not an entity id", v.Type)
	}
	var item struct {
		ID        string `json:"id"`
		NumericID *int64 `json:"numeric-id"`
	}
	if err := json.Unmarshal(v.Raw, &item); err != nil {
		return "", fmt.Errorf("decoding entity id value: %w", err)
	}
	if item.ID != "" {
		return item.ID, nil
	}
	if item.NumericID != nil {
		return fmt.Sprintf("Q%d", *item.NumericID), nil
	}
	return "", fmt.Errorf("entity id value has neither id nor numeric-id")
}

// Coordinate decodes a globecoordinate value. A pair missing either axis is
// an error, not a zero coordinate.
func (v Value) Coordinate() (lat, lon float64, err error) {
	if v.Type != "globecoordinate" {
		return 0, 0, fmt.Errorf("value is %q, not a coordinate", v.Type)
	}
	var coord struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(v.Raw, &coord); err != nil {
		return 0, 0, fmt.Errorf("decoding coordinate value: %w", err)
	}
	if coord.Latitude == nil {
		return 0, 0, fmt.Errorf("coordinate missing latitude")
	}
	if coord.Longitude == nil {
		return 0, 0, fmt.Errorf("coordinate missing longitude")
	}
	return *coord.Latitude, *coord.Longitude, nil
}

// Text decodes a plain string value.
func (v Value) Text() (string, error) {
	if v.Type != "string" {
		return "", fmt.Errorf("value is %q, not a string", v.Type)
	}
	var s string
	if err := json.Unmarshal(v.Raw, &s); err != nil {
		return "", fmt.Errorf("decoding string value: %w", err)
	}
	return s, nil
}

// Time decodes a time value into the wire timestamp, e.g.
// "+2011-12-31T00:00:00Z".
func (v Value) Time() (string, error) {
	if v.Type != "time" {
		return "", fmt.Errorf("value is %q, not a time", v.Type)
	}
	var point struct {
		Time *string `json:"time"`
	}
	if err := json.Unmarshal(v.Raw, &point); err != nil {
		return "", fmt.Errorf("decoding time value: %w", err)
	}
	if point.Time == nil {
		return "", fmt.Errorf("time value missing timestamp")
	}
	return *point.Time, nil
}

// Wire schema of the wbgetentities response.

type apiResponse struct {
	Entities map[string]apiEntity `json:"entities"`
	Error    *apiError            `json:"error,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type apiEntity struct {
	ID        string                 `json:"id"`
	Missing   *string                `json:"missing,omitempty"`
	Labels    map[string]apiLabel    `json:"labels"`
	Claims    map[string][]apiClaim  `json:"claims"`
	SiteLinks map[string]apiSiteLink `json:"sitelinks"`
}

type apiLabel struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type apiSiteLink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

type apiClaim struct {
	MainSnak   apiSnak              `json:"mainsnak"`
	Qualifiers map[string][]apiSnak `json:"qualifiers,omitempty"`
}

type apiSnak struct {
	SnakType  string        `json:"snaktype"`
	DataValue *apiDataValue `json:"datavalue,omitempty"`
}

type apiDataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (e apiEntity) toEntity(id string) *Entity {
	entity := &Entity{
		ID:        id,
		Labels:    make(map[string]string, len(e.Labels)),
		Claims:    make(map[string][]Statement, len(e.Claims)),
		SiteLinks: make(map[string]string, len(e.SiteLinks)),
	}
	if e.ID != "" {
		entity.ID = e.ID
	}

	for language, label := range e.Labels {
		entity.Labels[language] = label.Value
	}
	for site, link := range e.SiteLinks {
		entity.SiteLinks[site] = link.Title
	}

	for property, claims := range e.Claims {
		statements := make([]Statement, 0, len(claims))
		for _, claim := range claims {
			statement := Statement{Value: claim.MainSnak.toValue()}
			if len(claim.Qualifiers) > 0 {
				statement.Qualifiers = make(map[string][]Value, len(claim.Qualifiers))
				for qualifier, snaks := range claim.Qualifiers {
					for _, snak := range snaks {
						if value := snak.toValue(); value != nil {
							statement.Qualifiers[qualifier] = append(statement.Qualifiers[qualifier], *value)
						}
					}
				}
			}
			statements = append(statements, statement)
		}
		entity.Claims[property] = statements
	}

	return entity
}

func (s apiSnak) toValue() *Value {
	if s.SnakType != "value" || s.DataValue == nil {
		return nil
	}
	return &Value{Type: s.DataValue.Type, Raw: s.DataValue.Value}
}
