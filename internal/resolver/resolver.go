package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"metrograph/internal/domain"
	"metrograph/pkg/wikidata"
)

// Fetcher supplies raw attribute bundles for single entities.
type Fetcher interface {
	FetchEntity(ctx context.Context, id domain.EntityID) (*wikidata.Entity, error)
}

// MalformedAttributeError records an attribute that was present on the
// entity but could not be parsed into its expected shape. It never fails a
// resolution; the attribute is simply absent from the result.
type MalformedAttributeError struct {
	Entity    domain.EntityID
	Attribute string
	Err       error
}

func (e MalformedAttributeError) Error() string {
	return fmt.Sprintf("malformed %s on %s: %v", e.Attribute, e.Entity, e.Err)
}

func (e MalformedAttributeError) Unwrap() error {
	return e.Err
}

// Resolved is the normalized attribute record of one entity. Attribute
// fields are populated according to the entity kind; a missing attribute is
// its zero value.
type Resolved struct {
	Ref       domain.EntityRef
	Names     map[string]string
	Geo       *domain.GeoPosition
	OpenTime  string
	Color     string
	SiteLinks map[string]string

	// Systems holds the owning-system candidates of a line (part-of and
	// transport-network claims), used for membership filtering.
	Systems []domain.EntityID

	// Problems lists attributes dropped on the malformed-attribute path.
	Problems []MalformedAttributeError
}

// Resolver normalizes raw knowledge-graph bundles into Resolved records,
// hiding the remote schema's multi-valued fields, alternate property ids
// and missing attributes.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func New(fetcher Fetcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With("component", "resolver"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, ref domain.EntityRef) (*Resolved, error) {
	entity, err := r.fetcher.FetchEntity(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s %s: %w", ref.Kind, ref.ID, err)
	}

	resolved := &Resolved{
		Ref:       ref,
		Names:     make(map[string]string, len(entity.Labels)),
		SiteLinks: make(map[string]string, len(entity.SiteLinks)),
	}
	for language, name := range entity.Labels {
		resolved.Names[language] = name
	}
	for site, title := range entity.SiteLinks {
		resolved.SiteLinks[site] = title
	}

	switch ref.Kind {
	case domain.KindStation:
		r.extractGeo(entity, resolved)
		r.extractOpenTime(entity, resolved)
	case domain.KindLine:
		r.extractColor(entity, resolved)
		r.extractSystems(entity, resolved)
	}

	for _, problem := range resolved.Problems {
		r.logger.Warn("dropping malformed attribute",
			"id", problem.Entity,
			"attribute", problem.Attribute,
			"error", problem.Err,
		)
	}

	return resolved, nil
}

func (r *Resolver) extractGeo(entity *wikidata.Entity, resolved *Resolved) {
	for _, statement := range entity.Statements(wikidata.PropertyCoordinates) {
		if statement.Value == nil {
			r.logger.Debug("coordinate claim without value", "id", entity.ID)
			continue
		}
		lat, lon, err := statement.Value.Coordinate()
		if err != nil {
			resolved.problem(resolved.Ref.ID, "geo_position", err)
			return
		}
		resolved.Geo = &domain.GeoPosition{Lat: lat, Lon: lon}
		return
	}
}

func (r *Resolver) extractOpenTime(entity *wikidata.Entity, resolved *Resolved) {
	for _, statement := range entity.Statements(wikidata.PropertyOpeningDate) {
		if statement.Value == nil {
			r.logger.Debug("opening date claim without value", "id", entity.ID)
			continue
		}
		raw, err := statement.Value.Time()
		if err != nil {
			resolved.problem(resolved.Ref.ID, "open_time", err)
			return
		}
		openTime, err := normalizeTime(raw)
		if err != nil {
			resolved.problem(resolved.Ref.ID, "open_time", err)
			return
		}
		resolved.OpenTime = openTime
		return
	}
}

func (r *Resolver) extractColor(entity *wikidata.Entity, resolved *Resolved) {
	for _, statement := range entity.Statements(wikidata.PropertyColor) {
		if statement.Value == nil {
			continue
		}
		hex, err := statement.Value.Text()
		if err != nil {
			resolved.problem(resolved.Ref.ID, "color", err)
			break
		}
		resolved.Color = "#" + hex
		return
	}

	// Some lines model their color as a color item with a P465 qualifier.
	for _, statement := range entity.Statements(wikidata.PropertyComplexColor) {
		value, ok := statement.Qualifier(wikidata.PropertyColor)
		if !ok {
			continue
		}
		hex, err := value.Text()
		if err != nil {
			resolved.problem(resolved.Ref.ID, "color", err)
			return
		}
		resolved.Color = "#" + hex
		return
	}
}

func (r *Resolver) extractSystems(entity *wikidata.Entity, resolved *Resolved) {
	seen := make(map[domain.EntityID]bool)
	for _, property := range []string{wikidata.PropertyPartOf, wikidata.PropertyTransportNetwork} {
		for _, statement := range entity.Statements(property) {
			if statement.Value == nil {
				continue
			}
			id, err := statement.Value.ItemID()
			if err != nil {
				resolved.problem(resolved.Ref.ID, "system_membership", err)
				continue
			}
			if !seen[domain.EntityID(id)] {
				seen[domain.EntityID(id)] = true
				resolved.Systems = append(resolved.Systems, domain.EntityID(id))
			}
		}
	}
}

func (res *Resolved) problem(id domain.EntityID, attribute string, err error) {
	res.Problems = append(res.Problems, MalformedAttributeError{
		Entity:    id,
		Attribute: attribute,
		Err:       err,
	})
}

// normalizeTime converts a Wikidata timestamp like "+1935-05-15T00:00:00Z"
// into "1935.05.15 00:00:00". Zeroed month or day components (year or month
// precision) are clamped to 01 before parsing.
func normalizeTime(raw string) (string, error) {
	s := strings.TrimPrefix(raw, "+")
	if len(s) >= 10 {
		if s[5:7] == "00" {
			s = s[:5] + "01" + s[7:]
		}
		if s[8:10] == "00" {
			s = s[:8] + "01" + s[10:]
		}
	}
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t.Format("2006.01.02 15:04:05"), nil
}
