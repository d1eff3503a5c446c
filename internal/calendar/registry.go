package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type registryEntry struct {
	view      *View
	expiresAt time.Time
}

// Registry owns one View per session and closes views whose session ended.
type Registry struct {
	mu      sync.Mutex
	views   map[string]registryEntry
	newView func() *View
	now     func() time.Time
}

func NewRegistry(newView func() *View) *Registry {
	return &Registry{
		views:   make(map[string]registryEntry),
		newView: newView,
		now:     time.Now,
	}
}

// Get returns the session's view, creating it when absent. created reports
// whether the caller must Load it.
func (r *Registry) Get(sessionID string, expiresAt time.Time) (view *View, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.views[sessionID]; ok && !e.view.Closed() {
		return e.view, false
	}
	v := r.newView()
	r.views[sessionID] = registryEntry{view: v, expiresAt: expiresAt}
	return v, true
}

// Lookup returns the session's view without creating one.
func (r *Registry) Lookup(sessionID string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.views[sessionID]
	if !ok {
		return nil, false
	}
	return e.view, true
}

// Drop closes and forgets the session's view.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.views[sessionID]
	delete(r.views, sessionID)
	r.mu.Unlock()
	if ok {
		e.view.Close()
	}
}

// Sweep closes every view whose session has expired and returns how many.
func (r *Registry) Sweep() int {
	now := r.now()
	var expired []*View

	r.mu.Lock()
	for id, e := range r.views {
		if !now.Before(e.expiresAt) {
			expired = append(expired, e.view)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		v.Close()
	}
	return len(expired)
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Run sweeps every interval until ctx is done, then closes all views.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("Closed expired calendar views", "count", n)
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]registryEntry)
	r.mu.Unlock()
	for _, e := range views {
		e.view.Close()
	}
}
