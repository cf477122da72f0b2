package detector

import "sync"

// Registry is the set of symbols known to already exist. It is seeded from the
// full listing history at startup and grows as new listings are confirmed, so
// subsequent ticks for the same symbol skip the detection path.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]struct{})}
}

func (r *Registry) Load(symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range symbols {
		r.symbols[s] = struct{}{}
	}
}

func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[symbol]
	return ok
}

func (r *Registry) Add(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[symbol] = struct{}{}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}
