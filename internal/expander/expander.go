package expander

import (
	"context"
	"fmt"
	"log/slog"

	"metrograph/internal/domain"
	"metrograph/pkg/wikidata"
)

// Fetcher supplies raw attribute bundles for single entities.
type Fetcher interface {
	FetchEntity(ctx context.Context, id domain.EntityID) (*wikidata.Entity, error)
}

// ExpansionError wraps a failed relation expansion. It is fatal to the
// crawl step that requested it, not to the whole crawl.
type ExpansionError struct {
	Entity domain.EntityID
	Kind   domain.RelationKind
	Err    error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("expanding %s of %s: %v", e.Kind, e.Entity, e.Err)
}

func (e *ExpansionError) Unwrap() error {
	return e.Err
}

// Relations is a finite, produce-once sequence of related entity ids.
// It cannot be restarted; a caller consumes it exactly once.
type Relations struct {
	ids []domain.EntityID
	pos int
}

func (r *Relations) Next() (domain.EntityID, bool) {
	if r.pos >= len(r.ids) {
		return "", false
	}
	id := r.ids[r.pos]
	r.pos++
	return id, true
}

// Collect drains the remaining sequence.
func (r *Relations) Collect() []domain.EntityID {
	rest := make([]domain.EntityID, 0, len(r.ids)-r.pos)
	for {
		id, ok := r.Next()
		if !ok {
			return rest
		}
		rest = append(rest, id)
	}
}

// Expander maps semantic relation kinds onto knowledge-graph properties and
// returns the set of related entity ids.
type Expander struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func New(fetcher Fetcher, logger *slog.Logger) *Expander {
	return &Expander{
		fetcher: fetcher,
		logger:  logger.With("component", "expander"),
	}
}

func propertyFor(kind domain.RelationKind) string {
	switch kind {
	case domain.RelationStationsOfLine, domain.RelationLinesOfSystem:
		return wikidata.PropertyHasPart
	case domain.RelationLinesOfStation:
		return wikidata.PropertyLine
	case domain.RelationAdjacentStations:
		return wikidata.PropertyNextStation
	case domain.RelationConnectingStations:
		return wikidata.PropertyTransitionStation
	default:
		return ""
	}
}

// Expand returns the ordered, deduplicated sequence of entities related to
// ref by the given kind. An entity with no such relations yields an empty
// sequence, not an error.
func (e *Expander) Expand(ctx context.Context, ref domain.EntityRef, kind domain.RelationKind) (*Relations, error) {
	property := propertyFor(kind)
	if property == "" {
		return nil, &ExpansionError{Entity: ref.ID, Kind: kind, Err: fmt.Errorf("unsupported relation kind")}
	}

	entity, err := e.fetcher.FetchEntity(ctx, ref.ID)
	if err != nil {
		return nil, &ExpansionError{Entity: ref.ID, Kind: kind, Err: err}
	}

	seen := make(map[domain.EntityID]bool)
	var ids []domain.EntityID
	for _, statement := range entity.Statements(property) {
		if statement.Value == nil {
			e.logger.Debug("claim without value", "id", ref.ID, "relation", kind)
			continue
		}
		// A line membership with an end date is history, not topology.
		if kind == domain.RelationLinesOfStation && statement.HasQualifier(wikidata.PropertyEndDate) {
			continue
		}
		target, err := statement.Value.ItemID()
		if err != nil {
			e.logger.Warn("skipping unreadable relation target", "id", ref.ID, "relation", kind, "error", err)
			continue
		}
		if id := domain.EntityID(target); !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return &Relations{ids: ids}, nil
}
