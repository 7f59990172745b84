package ident

import (
	"fmt"
	"strings"

	"metrograph/internal/domain"
)

// Assigner hands out run-local composite identifiers. Assignment is
// idempotent per external id: the first call decides, every later call for
// the same id returns the identical result. Short ids derive from the
// external id itself, which is globally unique, so two distinct entities
// can never collide.
type Assigner struct {
	locals map[domain.EntityID]string
}

func NewAssigner() *Assigner {
	return &Assigner{
		locals: make(map[domain.EntityID]string),
	}
}

// AssignSystem assigns the system its local id.
func (a *Assigner) AssignSystem(id domain.EntityID) string {
	return a.assign(id, shortID(id))
}

// AssignLine assigns a line its local id.
func (a *Assigner) AssignLine(id domain.EntityID) string {
	return a.assign(id, shortID(id))
}

// AssignStation assigns a station its composite id under the owning line.
// If the station was already assigned under another line, the earlier
// assignment wins and is returned unchanged.
func (a *Assigner) AssignStation(id domain.EntityID, lineLocalID string) string {
	return a.assign(id, fmt.Sprintf("%s/%s", lineLocalID, shortID(id)))
}

// Lookup returns the local id assigned to an external id, if any.
func (a *Assigner) Lookup(id domain.EntityID) (string, bool) {
	local, ok := a.locals[id]
	return local, ok
}

// Assignments returns a copy of the full external-to-local id table.
func (a *Assigner) Assignments() map[domain.EntityID]string {
	table := make(map[domain.EntityID]string, len(a.locals))
	for id, local := range a.locals {
		table[id] = local
	}
	return table
}

func (a *Assigner) assign(id domain.EntityID, local string) string {
	if existing, ok := a.locals[id]; ok {
		return existing
	}
	a.locals[id] = local
	return local
}

func shortID(id domain.EntityID) string {
	return strings.ToLower(string(id))
}
