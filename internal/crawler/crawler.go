package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"metrograph/internal/domain"
	"metrograph/internal/expander"
	"metrograph/internal/ident"
	"metrograph/internal/resolver"
)

// SeedError is fatal: one of the two crawl seeds could not be resolved.
type SeedError struct {
	Role string // "system" or "station"
	ID   domain.EntityID
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed %s %s: %v", e.Role, e.ID, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// Diagnostic records a non-fatal per-entity failure. The entity is excluded
// from the output instead of aborting the crawl.
type Diagnostic struct {
	Entity domain.EntityID
	Stage  string
	Err    error
}

// Edge is a raw connection between two stations, keyed by external ids.
// Edges whose target never enters the resolved graph are elided at
// assembly time.
type Edge struct {
	From domain.EntityID
	To   domain.EntityID
	Type domain.ConnectionType
}

// Result is the completed discovery state of one crawl. Stations and lines
// are in first-discovery order.
type Result struct {
	RunID       string
	SystemID    string
	SystemNames map[string]string
	Stations    []*domain.Station
	Lines       []*domain.Line
	Edges       []Edge
	Locals      map[domain.EntityID]string
	Diagnostics []Diagnostic
}

// Crawler expands the discovery frontier from the seed entities until the
// whole network is visited. The visited-set check makes every entity expand
// at most once, so the crawl terminates on any finite graph regardless of
// station/line cycles.
type Crawler struct {
	resolver    *resolver.Resolver
	expander    *expander.Expander
	assigner    *ident.Assigner
	concurrency int
	logger      *slog.Logger
}

func New(res *resolver.Resolver, exp *expander.Expander, assigner *ident.Assigner, concurrency int, logger *slog.Logger) *Crawler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Crawler{
		resolver:    res,
		expander:    exp,
		assigner:    assigner,
		concurrency: concurrency,
		logger:      logger.With("component", "crawler"),
	}
}

// crawlState is the frontier and visited bookkeeping of a single crawl
// invocation. It grows monotonically and dies with the call.
type crawlState struct {
	systemID        domain.EntityID
	visitedLines    map[domain.EntityID]bool
	visitedStations map[domain.EntityID]bool
	lineQueue       []domain.EntityID

	stations    []*domain.Station
	lines       []*domain.Line
	edges       []Edge
	diagnostics []Diagnostic
}

func newCrawlState(systemID domain.EntityID) *crawlState {
	return &crawlState{
		systemID:        systemID,
		visitedLines:    make(map[domain.EntityID]bool),
		visitedStations: make(map[domain.EntityID]bool),
	}
}

func (s *crawlState) diag(id domain.EntityID, stage string, err error) {
	s.diagnostics = append(s.diagnostics, Diagnostic{Entity: id, Stage: stage, Err: err})
}

func (s *crawlState) recordProblems(res *resolver.Resolved) {
	for _, problem := range res.Problems {
		s.diag(problem.Entity, "attribute "+problem.Attribute, problem)
	}
}

// Crawl discovers every line and station of the system reachable from the
// seeds. It fails only if a seed itself cannot be resolved.
func (c *Crawler) Crawl(ctx context.Context, systemID domain.EntityID, seedStations []domain.EntityID) (*Result, error) {
	runID := uuid.New().String()
	logger := c.logger.With("run_id", runID)
	state := newCrawlState(systemID)

	systemRef := domain.EntityRef{ID: systemID, Kind: domain.KindSystem}
	systemRes, err := c.resolver.Resolve(ctx, systemRef)
	if err != nil {
		return nil, &SeedError{Role: "system", ID: systemID, Err: err}
	}
	state.recordProblems(systemRes)
	systemLocal := c.assigner.AssignSystem(systemID)

	for _, seed := range seedStations {
		seedRef := domain.EntityRef{ID: seed, Kind: domain.KindStation}
		if _, err := c.resolver.Resolve(ctx, seedRef); err != nil {
			return nil, &SeedError{Role: "station", ID: seed, Err: err}
		}
	}

	logger.Info("crawl started",
		"system", systemID,
		"system_local_id", systemLocal,
		"seed_stations", len(seedStations),
	)

	// Top-down: lines declared as parts of the system.
	if relations, err := c.expander.Expand(ctx, systemRef, domain.RelationLinesOfSystem); err != nil {
		state.diag(systemID, "expand lines_of_system", err)
		logger.Warn("system line expansion failed", "id", systemID, "error", err)
	} else {
		for {
			lineID, ok := relations.Next()
			if !ok {
				break
			}
			c.enqueueLine(ctx, state, lineID, true, logger)
		}
	}

	// Bottom-up: lines of the seed stations. Interchange stations can reach
	// lines the system item never declares.
	for _, seed := range seedStations {
		seedRef := domain.EntityRef{ID: seed, Kind: domain.KindStation}
		relations, err := c.expander.Expand(ctx, seedRef, domain.RelationLinesOfStation)
		if err != nil {
			state.diag(seed, "expand lines_of_station", err)
			logger.Warn("seed line expansion failed", "id", seed, "error", err)
			continue
		}
		for {
			lineID, ok := relations.Next()
			if !ok {
				break
			}
			c.enqueueLine(ctx, state, lineID, false, logger)
		}
	}

	for len(state.lineQueue) > 0 {
		lineID := state.lineQueue[0]
		state.lineQueue = state.lineQueue[1:]
		c.processLine(ctx, state, lineID, logger)
	}

	result := &Result{
		RunID:       runID,
		SystemID:    systemLocal,
		SystemNames: systemRes.Names,
		Stations:    state.stations,
		Lines:       state.lines,
		Edges:       state.edges,
		Locals:      c.assigner.Assignments(),
		Diagnostics: state.diagnostics,
	}

	logger.Info("crawl completed",
		"lines", len(result.Lines),
		"stations", len(result.Stations),
		"edges", len(result.Edges),
		"skipped", len(result.Diagnostics),
	)

	return result, nil
}

// enqueueLine adds a line to the frontier once. Lines reached bottom-up
// (trusted=false) must declare membership in the seed system, otherwise an
// interchange station would drag the crawl into foreign networks.
func (c *Crawler) enqueueLine(ctx context.Context, state *crawlState, lineID domain.EntityID, trusted bool, logger *slog.Logger) {
	if state.visitedLines[lineID] {
		return
	}
	state.visitedLines[lineID] = true

	if !trusted && lineID != state.systemID {
		res, err := c.resolver.Resolve(ctx, domain.EntityRef{ID: lineID, Kind: domain.KindLine})
		if err != nil {
			state.diag(lineID, "resolve line", err)
			logger.Warn("skipping unresolvable line", "id", lineID, "error", err)
			return
		}
		if !containsID(res.Systems, state.systemID) {
			state.diag(lineID, "membership", fmt.Errorf("line is not part of system %s", state.systemID))
			logger.Info("skipping line outside system", "id", lineID)
			return
		}
	}

	state.lineQueue = append(state.lineQueue, lineID)
}

func (c *Crawler) processLine(ctx context.Context, state *crawlState, lineID domain.EntityID, logger *slog.Logger) {
	lineRef := domain.EntityRef{ID: lineID, Kind: domain.KindLine}

	res, err := c.resolver.Resolve(ctx, lineRef)
	if err != nil {
		state.diag(lineID, "resolve line", err)
		logger.Warn("skipping unresolvable line", "id", lineID, "error", err)
		return
	}
	state.recordProblems(res)

	lineLocal := c.assigner.AssignLine(lineID)
	state.lines = append(state.lines, &domain.Line{
		ID:    lineLocal,
		Names: res.Names,
		Color: res.Color,
	})

	relations, err := c.expander.Expand(ctx, lineRef, domain.RelationStationsOfLine)
	if err != nil {
		state.diag(lineID, "expand stations_of_line", err)
		logger.Warn("line station expansion failed", "id", lineID, "error", err)
		return
	}

	// Discovery and id assignment are sequential in expansion order, which
	// keeps output order reproducible; only attribute fetches fan out.
	var discovered []domain.EntityID
	for {
		stationID, ok := relations.Next()
		if !ok {
			break
		}
		if state.visitedStations[stationID] {
			continue
		}
		state.visitedStations[stationID] = true
		c.assigner.AssignStation(stationID, lineLocal)
		discovered = append(discovered, stationID)
	}

	resolved, errs := c.resolveStations(ctx, discovered)

	expandable := make([]domain.EntityID, 0, len(discovered))
	for i, stationID := range discovered {
		if errs[i] != nil {
			state.diag(stationID, "resolve station", errs[i])
			logger.Warn("skipping unresolvable station", "id", stationID, "error", errs[i])
			continue
		}
		state.recordProblems(resolved[i])

		local, _ := c.assigner.Lookup(stationID)
		state.stations = append(state.stations, &domain.Station{
			ID:        local,
			Line:      lineLocal,
			Names:     resolved[i].Names,
			OpenTime:  resolved[i].OpenTime,
			Geo:       resolved[i].Geo,
			SiteLinks: resolved[i].SiteLinks,
		})
		expandable = append(expandable, stationID)
	}

	for _, stationID := range expandable {
		c.expandStation(ctx, state, stationID, logger)
	}

	logger.Debug("line processed",
		"id", lineID,
		"local_id", lineLocal,
		"new_stations", len(discovered),
	)
}

// resolveStations fetches station attributes with a bounded fan-out. The
// visited-set and assignments are settled before this runs, so concurrent
// resolution cannot race on discovery state.
func (c *Crawler) resolveStations(ctx context.Context, ids []domain.EntityID) ([]*resolver.Resolved, []error) {
	results := make([]*resolver.Resolved, len(ids))
	errs := make([]error, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ref := domain.EntityRef{ID: id, Kind: domain.KindStation}
			results[i], errs[i] = c.resolver.Resolve(ctx, ref)
			return nil
		})
	}
	g.Wait()

	return results, errs
}

func (c *Crawler) expandStation(ctx context.Context, state *crawlState, stationID domain.EntityID, logger *slog.Logger) {
	stationRef := domain.EntityRef{ID: stationID, Kind: domain.KindStation}

	// Outward line discovery keeps the crawl complete when a line is only
	// reachable through one of its stations.
	if relations, err := c.expander.Expand(ctx, stationRef, domain.RelationLinesOfStation); err != nil {
		state.diag(stationID, "expand lines_of_station", err)
		logger.Warn("station line expansion failed", "id", stationID, "error", err)
	} else {
		for {
			lineID, ok := relations.Next()
			if !ok {
				break
			}
			c.enqueueLine(ctx, state, lineID, false, logger)
		}
	}

	c.recordEdges(ctx, state, stationRef, domain.RelationAdjacentStations, domain.ConnectionAdjacent, logger)
	c.recordEdges(ctx, state, stationRef, domain.RelationConnectingStations, domain.ConnectionTransfer, logger)
}

func (c *Crawler) recordEdges(ctx context.Context, state *crawlState, ref domain.EntityRef, kind domain.RelationKind, connType domain.ConnectionType, logger *slog.Logger) {
	relations, err := c.expander.Expand(ctx, ref, kind)
	if err != nil {
		state.diag(ref.ID, "expand "+kind.String(), err)
		logger.Warn("connection expansion failed", "id", ref.ID, "relation", kind, "error", err)
		return
	}
	for {
		target, ok := relations.Next()
		if !ok {
			return
		}
		state.edges = append(state.edges, Edge{From: ref.ID, To: target, Type: connType})
	}
}

func containsID(ids []domain.EntityID, id domain.EntityID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
