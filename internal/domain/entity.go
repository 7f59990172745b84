package domain

// EntityID is the knowledge graph's own identifier for an entity,
// e.g. "Q5503" for a Wikidata item.
type EntityID string

// EntityKind distinguishes the roles an entity plays in a transit network
type EntityKind int

const (
	KindStation EntityKind = iota
	KindLine
	KindSystem
)

func (k EntityKind) String() string {
	switch k {
	case KindStation:
		return "station"
	case KindLine:
		return "line"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// EntityRef is an external entity id tagged with its locally-understood kind.
// Immutable once created.
type EntityRef struct {
	ID   EntityID
	Kind EntityKind
}

// RelationKind is a typed edge category between knowledge-graph entities
type RelationKind int

const (
	RelationStationsOfLine RelationKind = iota
	RelationLinesOfStation
	RelationAdjacentStations
	RelationConnectingStations
	RelationLinesOfSystem
)

func (r RelationKind) String() string {
	switch r {
	case RelationStationsOfLine:
		return "stations_of_line"
	case RelationLinesOfStation:
		return "lines_of_station"
	case RelationAdjacentStations:
		return "adjacent_stations"
	case RelationConnectingStations:
		return "connecting_stations"
	case RelationLinesOfSystem:
		return "lines_of_system"
	default:
		return "unknown"
	}
}
