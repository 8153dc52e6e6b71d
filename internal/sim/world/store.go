package world

import (
	"sort"

	"driftmoor.ai/internal/sim/simerr"
)

// Store owns every entity. Reads are free within the world goroutine; writes are only accepted
// while a tick step (or world load) holds the write window, which is what lets each system assume
// state is stable for the rest of the tick.
type Store struct {
	entities map[string]*Entity
	writable bool

	dirty   map[string]bool
	removed []removedEntity
}

type removedEntity struct {
	ID   string
	Area string
}

func NewStore() *Store {
	return &Store{entities: map[string]*Entity{}, dirty: map[string]bool{}}
}

func (s *Store) begin() { s.writable = true }
func (s *Store) end()   { s.writable = false }

func (s *Store) mustWrite(op string) {
	if !s.writable {
		panic("world: store." + op + " outside a tick step")
	}
}

// Get returns the entity for reading. Callers must not modify it; use Mutate.
func (s *Store) Get(id string) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

func (s *Store) Create(e *Entity) error {
	s.mustWrite("Create")
	if _, ok := s.entities[e.ID]; ok {
		return simerr.New(simerr.InvalidTarget, "entity %s exists", e.ID)
	}
	s.entities[e.ID] = e
	s.dirty[e.ID] = true
	return nil
}

func (s *Store) Remove(id string) bool {
	s.mustWrite("Remove")
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	delete(s.entities, id)
	delete(s.dirty, id)
	s.removed = append(s.removed, removedEntity{ID: id, Area: e.Pos.Area})
	return true
}

// Mutate runs fn against the entity and marks it dirty.
func (s *Store) Mutate(id string, fn func(e *Entity)) error {
	e := s.edit(id)
	if e == nil {
		return simerr.New(simerr.NotFound, "entity %s", id)
	}
	fn(e)
	return nil
}

// edit is Mutate without the closure, for systems that interleave reads and writes.
func (s *Store) edit(id string) *Entity {
	s.mustWrite("Mutate")
	e, ok := s.entities[id]
	if !ok {
		return nil
	}
	s.dirty[id] = true
	return e
}

func (s *Store) Len() int { return len(s.entities) }

// IDs returns every entity id in sorted order; systems iterate in this order for determinism.
func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.entities))
	for id := range s.entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// takeDirty returns the ids changed since the last call, sorted, plus removed entities.
func (s *Store) takeDirty() ([]string, []removedEntity) {
	ids := sortedKeys(s.dirty)
	removed := s.removed
	s.dirty = map[string]bool{}
	s.removed = nil
	return ids, removed
}
