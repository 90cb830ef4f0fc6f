package guides

import "sync/atomic"

// Store publishes the current registry. Reloads replace the whole registry;
// readers that already resolved a guide keep using it.
type Store struct {
	cur atomic.Pointer[Registry]
}

func NewStore(reg *Registry) *Store {
	s := &Store{}
	s.cur.Store(reg)
	return s
}

// Registry returns the current snapshot.
func (s *Store) Registry() *Registry {
	if s == nil {
		return nil
	}
	return s.cur.Load()
}

// Swap installs reg and returns the previous registry.
func (s *Store) Swap(reg *Registry) *Registry {
	return s.cur.Swap(reg)
}

func (s *Store) Lookup(action string) (*Guide, error) {
	return s.Registry().Lookup(action)
}

var (
	_ Lookup = (*Registry)(nil)
	_ Lookup = (*Store)(nil)
)
