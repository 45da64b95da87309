package intern

import "sync"

// Pool deduplicates heavily repeated strings. Schema paths and identity
// kinds recur across every state snapshot in the store, so canonicalizing
// them keeps one backing array per distinct path.
type Pool struct {
	mu    sync.RWMutex
	store map[string]string
}

var globalPool = &Pool{store: make(map[string]string)}

// Path returns the canonical version of a schema path.
// If s is already in the pool, the pooled version is returned.
func Path(s string) string {
	return String(s)
}

// String returns the canonical version of s.
func String(s string) string {
	globalPool.mu.RLock()
	if interned, ok := globalPool.store[s]; ok {
		globalPool.mu.RUnlock()
		return interned
	}
	globalPool.mu.RUnlock()

	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	// Double-check locking
	if interned, ok := globalPool.store[s]; ok {
		return interned
	}
	globalPool.store[s] = s
	return s
}

// Size returns the number of distinct strings held.
func Size() int {
	globalPool.mu.RLock()
	defer globalPool.mu.RUnlock()
	return len(globalPool.store)
}

// Reset clears the global pool. Useful for testing or aggressive GC.
func Reset() {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	globalPool.store = make(map[string]string)
}
