// Package cart holds the per-session shopping carts. Carts are process-local
// and never persisted; they are keyed by the authenticated customer number
// and owned by whoever serves the session.
package cart

import (
	"sync"

	"medlager/m/domain"
)

// Registry maps customer numbers to their pending cart items.
type Registry struct {
	mu    sync.Mutex
	carts map[string][]domain.CartItem
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{carts: make(map[string][]domain.CartItem)}
}

// Items returns a copy of the customer's cart.
func (r *Registry) Items(customer string) []domain.CartItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]domain.CartItem, len(r.carts[customer]))
	copy(items, r.carts[customer])
	return items
}

// Contains reports whether the barcode is already in the customer's cart.
func (r *Registry) Contains(customer, barcode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.carts[customer] {
		if item.Barcode == barcode {
			return true
		}
	}
	return false
}

// Add appends an item to the customer's cart.
func (r *Registry) Add(customer string, item domain.CartItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[customer] = append(r.carts[customer], item)
}

// Clear empties the customer's cart.
func (r *Registry) Clear(customer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, customer)
}
