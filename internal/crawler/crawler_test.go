package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrograph/internal/domain"
	"metrograph/internal/expander"
	"metrograph/internal/ident"
	"metrograph/internal/resolver"
	"metrograph/pkg/wikidata"
)

// fixture is an in-memory knowledge graph serving both the resolver and the
// expander during tests.
type fixture struct {
	mu       sync.Mutex
	entities map[domain.EntityID]*wikidata.Entity
	fail     map[domain.EntityID]error
}

func newFixture() *fixture {
	return &fixture{
		entities: make(map[domain.EntityID]*wikidata.Entity),
		fail:     make(map[domain.EntityID]error),
	}
}

func (f *fixture) FetchEntity(ctx context.Context, id domain.EntityID) (*wikidata.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	entity, ok := f.entities[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, wikidata.ErrNotFound)
	}
	return entity, nil
}

func itemStatement(id string) wikidata.Statement {
	return wikidata.Statement{Value: &wikidata.Value{
		Type: "wikibase-entityid",
		Raw:  json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
	}}
}

func itemStatements(ids []string) []wikidata.Statement {
	statements := make([]wikidata.Statement, 0, len(ids))
	for _, id := range ids {
		statements = append(statements, itemStatement(id))
	}
	return statements
}

func (f *fixture) add(id string, name string, claims map[string][]wikidata.Statement) {
	f.entities[domain.EntityID(id)] = &wikidata.Entity{
		ID:     id,
		Labels: map[string]string{"en": name},
		Claims: claims,
	}
}

func (f *fixture) addSystem(id string, lines ...string) {
	f.add(id, "System "+id, map[string][]wikidata.Statement{
		wikidata.PropertyHasPart: itemStatements(lines),
	})
}

func (f *fixture) addLine(id, system string, stations ...string) {
	f.add(id, "Line "+id, map[string][]wikidata.Statement{
		wikidata.PropertyPartOf:  {itemStatement(system)},
		wikidata.PropertyHasPart: itemStatements(stations),
	})
}

func (f *fixture) addStation(id string, lines, adjacent, transfers []string) {
	f.add(id, "Station "+id, map[string][]wikidata.Statement{
		wikidata.PropertyLine:              itemStatements(lines),
		wikidata.PropertyNextStation:       itemStatements(adjacent),
		wikidata.PropertyTransitionStation: itemStatements(transfers),
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCrawler(f *fixture) *Crawler {
	logger := testLogger()
	return New(resolver.New(f, logger), expander.New(f, logger), ident.NewAssigner(), 2, logger)
}

func stationIDs(result *Result) []string {
	ids := make([]string, 0, len(result.Stations))
	for _, station := range result.Stations {
		ids = append(ids, station.ID)
	}
	return ids
}

func lineIDs(result *Result) []string {
	ids := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		ids = append(ids, line.ID)
	}
	return ids
}

// Two lines sharing a transfer point, seeded from the shared station.
func twoLineFixture() *fixture {
	f := newFixture()
	f.addSystem("Q1", "Q2", "Q3")
	f.addLine("Q2", "Q1", "Q10", "Q11")
	f.addLine("Q3", "Q1", "Q11", "Q12")
	f.addStation("Q10", []string{"Q2"}, []string{"Q11"}, nil)
	f.addStation("Q11", []string{"Q2", "Q3"}, []string{"Q10", "Q12"}, nil)
	f.addStation("Q12", []string{"Q3"}, []string{"Q11"}, nil)
	return f
}

func TestCrawlDiscoversWholeNetwork(t *testing.T) {
	c := newTestCrawler(twoLineFixture())

	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	assert.Equal(t, "q1", result.SystemID)
	assert.Equal(t, []string{"q2", "q3"}, lineIDs(result))
	assert.Equal(t, []string{"q2/q10", "q2/q11", "q3/q12"}, stationIDs(result))

	// The shared station keeps its first owning line.
	assert.Equal(t, "q2", result.Stations[1].Line)
	assert.Equal(t, "Station Q11", result.Stations[1].Names["en"])

	assert.Contains(t, result.Edges, Edge{From: "Q10", To: "Q11", Type: domain.ConnectionAdjacent})
	assert.Contains(t, result.Edges, Edge{From: "Q11", To: "Q12", Type: domain.ConnectionAdjacent})
	assert.Empty(t, result.Diagnostics)
}

func TestCrawlOwnershipFollowsDiscoveryOrder(t *testing.T) {
	// Same network, but the system declares its lines in the other order.
	f := twoLineFixture()
	f.addSystem("Q1", "Q3", "Q2")

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	assert.Equal(t, []string{"q3", "q2"}, lineIDs(result))
	assert.Equal(t, "q3/q11", result.Locals["Q11"], "shared station belongs to the line that found it first")
	assert.Equal(t, []string{"q3/q11", "q3/q12", "q2/q10"}, stationIDs(result))
}

func TestCrawlDiscoversLineOnlyReachableFromStation(t *testing.T) {
	// Q3 is missing from the system item and only reachable through the
	// interchange station Q11.
	f := twoLineFixture()
	f.addSystem("Q1", "Q2")

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q10"})
	require.NoError(t, err)

	assert.Equal(t, []string{"q2", "q3"}, lineIDs(result))
	assert.Contains(t, stationIDs(result), "q3/q12")
}

func TestCrawlTerminatesOnCycles(t *testing.T) {
	// A circle line: the adjacency relation forms a ring and every station
	// points back at its line.
	f := newFixture()
	f.addSystem("Q1", "Q2")
	f.addLine("Q2", "Q1", "Q10", "Q11", "Q12")
	f.addStation("Q10", []string{"Q2"}, []string{"Q11", "Q12"}, nil)
	f.addStation("Q11", []string{"Q2"}, []string{"Q12", "Q10"}, nil)
	f.addStation("Q12", []string{"Q2"}, []string{"Q10", "Q11"}, nil)

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q10"})
	require.NoError(t, err)

	assert.Equal(t, []string{"q2/q10", "q2/q11", "q2/q12"}, stationIDs(result),
		"every station visited exactly once despite the cycle")
}

func TestCrawlTransferEdges(t *testing.T) {
	// Two separate station entities joined by a transition relation.
	f := newFixture()
	f.addSystem("Q1", "Q2", "Q3")
	f.addLine("Q2", "Q1", "Q11")
	f.addLine("Q3", "Q1", "Q13")
	f.addStation("Q11", []string{"Q2"}, nil, []string{"Q13"})
	f.addStation("Q13", []string{"Q3"}, nil, []string{"Q11"})

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	assert.Contains(t, result.Edges, Edge{From: "Q11", To: "Q13", Type: domain.ConnectionTransfer})
	assert.Contains(t, result.Edges, Edge{From: "Q13", To: "Q11", Type: domain.ConnectionTransfer})
}

func TestCrawlRejectsLineOutsideSystem(t *testing.T) {
	f := twoLineFixture()
	// The interchange also serves a line of a foreign network.
	f.addStation("Q11", []string{"Q2", "Q3", "Q50"}, []string{"Q10", "Q12"}, nil)
	f.addLine("Q50", "Q99", "Q60")

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	assert.Equal(t, []string{"q2", "q3"}, lineIDs(result))
	assert.NotContains(t, stationIDs(result), "q50/q60")

	var rejected bool
	for _, diag := range result.Diagnostics {
		if diag.Entity == "Q50" && diag.Stage == "membership" {
			rejected = true
		}
	}
	assert.True(t, rejected, "foreign line rejection must leave a diagnostic")
}

func TestCrawlSkipsFailingStation(t *testing.T) {
	f := twoLineFixture()
	f.fail["Q12"] = errors.New("connection reset")

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err, "a per-entity failure must not abort the crawl")

	assert.Equal(t, []string{"q2/q10", "q2/q11"}, stationIDs(result))

	var skipped bool
	for _, diag := range result.Diagnostics {
		if diag.Entity == "Q12" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestCrawlStationWithoutAttributes(t *testing.T) {
	c := newTestCrawler(twoLineFixture())

	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	for _, station := range result.Stations {
		assert.Nil(t, station.Geo, "fixture has no coordinates; stations still resolve")
		assert.Empty(t, station.OpenTime)
	}
}

func TestCrawlSeedSystemNotFound(t *testing.T) {
	c := newTestCrawler(twoLineFixture())

	_, err := c.Crawl(context.Background(), "Q404", []domain.EntityID{"Q11"})

	var seedErr *SeedError
	require.ErrorAs(t, err, &seedErr)
	assert.Equal(t, "system", seedErr.Role)
	assert.Equal(t, domain.EntityID("Q404"), seedErr.ID)
	assert.ErrorIs(t, err, wikidata.ErrNotFound)
}

func TestCrawlSeedStationNotFound(t *testing.T) {
	c := newTestCrawler(twoLineFixture())

	_, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q404"})

	var seedErr *SeedError
	require.ErrorAs(t, err, &seedErr)
	assert.Equal(t, "station", seedErr.Role)
	assert.Equal(t, domain.EntityID("Q404"), seedErr.ID)
}

func TestCrawlEmptySystem(t *testing.T) {
	f := newFixture()
	f.addSystem("Q1")
	f.addStation("Q11", nil, nil, nil)

	c := newTestCrawler(f)
	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)

	assert.Empty(t, result.Lines)
	assert.Empty(t, result.Stations)
}

func TestCrawlAssignsRunID(t *testing.T) {
	c := newTestCrawler(twoLineFixture())

	result, err := c.Crawl(context.Background(), "Q1", []domain.EntityID{"Q11"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
}
