package book

import "sync"

// Registry owns the set of live books for one feed, keyed by asset id. Books
// are created lazily when the first snapshot for an asset arrives and deleted
// when the last consumer unsubscribes.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*Book)}
}

// Get returns the book for an asset, if one exists.
func (r *Registry) Get(assetID string) (*Book, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[assetID]
	return b, ok
}

// GetOrCreate returns the existing book for an asset or creates an empty one.
func (r *Registry) GetOrCreate(assetID string) *Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[assetID]; ok {
		return b
	}
	b := New(assetID)
	r.books[assetID] = b
	return b
}

// Delete discards the book for an asset. A later re-subscribe starts from a
// fresh, empty book pending the next snapshot.
func (r *Registry) Delete(assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, assetID)
}

// MarkAllStale flags every book after a feed disconnect. Values are retained;
// the post-reconnect snapshots atomically replace them.
func (r *Registry) MarkAllStale() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.books {
		b.MarkStale()
	}
}

// Len returns the number of live books.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}
