package cart

import "sync"

// Registry hands out one cart per cashier. Carts live for the lifetime
// of the process; settlement clears them, restarts discard them.
type Registry struct {
	mu    sync.Mutex
	carts map[int64]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[int64]*Cart)}
}

// For returns the cart owned by the given user, creating it on first use.
func (r *Registry) For(userID int64) *Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[userID]
	if !ok {
		c = New()
		r.carts[userID] = c
	}
	return c
}

// Drop discards the user's cart entirely.
func (r *Registry) Drop(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
}
