// Package identity maintains the id -> name mapping derived from the face storage
// buckets. The mapping is a cache: storage is the source of truth.
package identity

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facestore"
)

// Person is one enrolled identity.
type Person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Registry resolves person ids to names. Readers always see a complete mapping.
type Registry struct {
	store  *facestore.Store
	people atomic.Pointer[map[int]string]
}

// NewRegistry returns an empty registry over store. Call Rebuild to populate it.
func NewRegistry(store *facestore.Store) *Registry {
	r := &Registry{store: store}
	empty := map[int]string{}
	r.people.Store(&empty)
	return r
}

// Rebuild rescans the buckets and swaps in the new mapping. Malformed bucket names
// are skipped with a warning. A missing storage root yields an empty mapping.
func (r *Registry) Rebuild() error {
	buckets, skipped, err := r.store.ListBuckets()
	if err != nil && !errors.Is(err, apperr.ErrNoData) {
		return err
	}
	for _, name := range skipped {
		slog.Warn("skipping malformed bucket", "bucket", name)
	}

	people := make(map[int]string, len(buckets))
	for _, b := range buckets {
		if prev, ok := people[b.ID]; ok && prev != b.Name {
			slog.Warn("duplicate person id in face storage", "id", b.ID, "kept", b.Name, "dropped", prev)
		}
		people[b.ID] = b.Name
	}
	r.people.Store(&people)
	return nil
}

// Resolve returns the name for id, or "Unknown".
func (r *Registry) Resolve(id int) string {
	if name, ok := (*r.people.Load())[id]; ok {
		return name
	}
	return constants.UnknownName
}

// Count returns the number of known people.
func (r *Registry) Count() int {
	return len(*r.people.Load())
}

// People returns every known person sorted by id.
func (r *Registry) People() []Person {
	m := *r.people.Load()
	out := make([]Person, 0, len(m))
	for id, name := range m {
		out = append(out, Person{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b Person) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// FindByName returns the ids whose name folds to the same key as name.
func (r *Registry) FindByName(name string) []int {
	key := MatchKey(name)
	var ids []int
	for _, p := range r.People() {
		if MatchKey(p.Name) == key {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
