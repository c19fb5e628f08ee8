package opportunity

import (
	"sync"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
)

// Hub signals watchers whose geohash bound contains a changed opportunity.
// Signals carry no payload; watchers re-read the store.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]watch
}

type watch struct {
	bound  geo.Bound
	notify chan<- struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]watch)}
}

// Watch registers notify for changes inside bound and returns the function that
// removes the registration.
func (h *Hub) Watch(bound geo.Bound, notify chan<- struct{}) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = watch{bound: bound, notify: notify}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish never blocks: a watcher with a pending signal already has work queued.
func (h *Hub) Publish(ev models.OpportunityEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.subs {
		if !w.bound.Contains(ev.OriginGeohash) {
			continue
		}
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
