package assembler

import (
	"errors"
	"fmt"

	"metrograph/internal/crawler"
	"metrograph/internal/domain"
)

// ErrEmptySystem is returned when the crawl discovered no lines at all.
var ErrEmptySystem = errors.New("no lines discovered")

// Assemble converts a completed crawl into the output document. Stations
// and lines keep their first-discovery order. A connection survives only if
// its target is itself a station of the resolved graph; dangling and
// self-referencing edges are dropped, as are duplicates.
func Assemble(result *crawler.Result) (*domain.Document, error) {
	if len(result.Lines) == 0 {
		return nil, fmt.Errorf("system %s: %w", result.SystemID, ErrEmptySystem)
	}

	byLocal := make(map[string]*domain.Station, len(result.Stations))
	for _, station := range result.Stations {
		station.Connections = []domain.Connection{}
		byLocal[station.ID] = station
	}

	type edgeKey struct {
		from, to string
		typ      domain.ConnectionType
	}
	seen := make(map[edgeKey]bool)
	for _, edge := range result.Edges {
		fromLocal, ok := result.Locals[edge.From]
		if !ok {
			continue
		}
		station, ok := byLocal[fromLocal]
		if !ok {
			continue
		}
		toLocal, ok := result.Locals[edge.To]
		if !ok || toLocal == fromLocal {
			continue
		}
		if _, ok := byLocal[toLocal]; !ok {
			continue
		}

		key := edgeKey{from: fromLocal, to: toLocal, typ: edge.Type}
		if seen[key] {
			continue
		}
		seen[key] = true
		station.Connections = append(station.Connections, domain.Connection{To: toLocal, Type: edge.Type})
	}

	return &domain.Document{
		ID:       result.SystemID,
		Stations: result.Stations,
		Lines:    result.Lines,
	}, nil
}
