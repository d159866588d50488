package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Registry tracks live sessions by id. Entries are independent; there is
// no lock shared across sessions.
type Registry struct {
	sessions sync.Map
	count    atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func NewID() string {
	return uuid.NewString()
}

func (r *Registry) Add(s *Session) {
	if _, loaded := r.sessions.LoadOrStore(s.ID(), s); !loaded {
		r.count.Add(1)
	}
}

func (r *Registry) Remove(id string) {
	if _, loaded := r.sessions.LoadAndDelete(id); loaded {
		r.count.Add(-1)
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}

// StopAll stops every registered session and empties the registry.
func (r *Registry) StopAll() {
	r.sessions.Range(func(key, value any) bool {
		value.(*Session).Stop()
		r.Remove(key.(string))
		return true
	})
}
