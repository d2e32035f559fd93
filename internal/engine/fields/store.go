// # internal/engine/fields/store.go
package fields

import (
	"sort"

	"rtinfer/internal/engine/types"
)

// Key identifies a global variable (Class empty) or an instance field scoped
// to the class that declares the accessing method.
type Key struct {
	Class string
	Name  string
}

// Global returns the key for a global variable such as "$sim9".
func Global(name string) Key {
	return Key{Name: name}
}

// Instance returns the key for field name declared by class.
func Instance(class, name string) Key {
	return Key{Class: class, Name: name}
}

// IsGlobal reports whether k names a global variable.
func (k Key) IsGlobal() bool { return k.Class == "" }

func (k Key) String() string {
	if k.IsGlobal() {
		return k.Name
	}
	return k.Class + "#" + k.Name
}

// Entry is one accumulated field type.
type Entry struct {
	Key  Key
	Type *types.Union
}

// Store accumulates the types observed flowing into fields. Entries only
// widen. The store is not safe for concurrent use.
type Store struct {
	entries    map[Key]*types.Union
	generation uint64
	onWrite    func(Key)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[Key]*types.Union)}
}

// OnWrite registers a hook invoked for every write.
func (s *Store) OnWrite(fn func(Key)) {
	s.onWrite = fn
}

// Read returns the accumulated type for k. A key that was never written reads
// as NullType, and that NullType stays part of the entry.
func (s *Store) Read(k Key) *types.Union {
	if t, ok := s.entries[k]; ok {
		return t
	}
	t := types.Join(types.NullType)
	s.entries[k] = t
	s.generation++
	return t
}

// Lookup returns the entry for k without materialising it.
func (s *Store) Lookup(k Key) (*types.Union, bool) {
	t, ok := s.entries[k]
	return t, ok
}

// Write joins t into k's entry and returns the accumulated type.
func (s *Store) Write(k Key, t types.Type) *types.Union {
	if s.onWrite != nil {
		s.onWrite(k)
	}
	prev, ok := s.entries[k]
	if !ok {
		next := types.AsUnion(t)
		s.entries[k] = next
		s.generation++
		return next
	}
	next := types.Join(prev, t)
	if !types.Equivalent(prev, next) {
		s.entries[k] = next
		s.generation++
		return next
	}
	return prev
}

// Seed installs a predeclared type for k if it has no entry yet.
func (s *Store) Seed(k Key, t types.Type) {
	if _, ok := s.entries[k]; ok {
		return
	}
	s.entries[k] = types.AsUnion(t)
	s.generation++
}

// Generation changes whenever any entry is created or widened.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Len is the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Snapshot returns every entry sorted by key.
func (s *Store) Snapshot() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for k, t := range s.entries {
		out = append(out, Entry{Key: k, Type: t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Class != out[j].Key.Class {
			return out[i].Key.Class < out[j].Key.Class
		}
		return out[i].Key.Name < out[j].Key.Name
	})
	return out
}
