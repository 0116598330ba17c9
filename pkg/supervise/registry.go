package supervise

import (
	"sync"
)

// Registry holds launched services in launch order. Shutdown walks it front to back.
type Registry struct {
	mu    sync.Mutex
	items []*Process
}

func (r *Registry) Add(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items {
		if existing.Spec.Name == p.Spec.Name {
			r.items[i] = p
			return
		}
	}
	r.items = append(r.items, p)
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items[:0]
	for _, p := range r.items {
		if p.Spec.Name != name {
			out = append(out, p)
		}
	}
	r.items = out
}

func (r *Registry) Get(name string) *Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.Spec.Name == name {
			return p
		}
	}
	return nil
}

func (r *Registry) Snapshot() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Process{}, r.items...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
