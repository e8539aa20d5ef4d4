package service

import "sync"

// keyHolder guards a provider API key that may be swapped at runtime
type keyHolder struct {
	mu  sync.RWMutex
	key string
}

func newKeyHolder(key string) *keyHolder {
	return &keyHolder{key: key}
}

func (h *keyHolder) get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.key
}

func (h *keyHolder) set(key string) {
	h.mu.Lock()
	h.key = key
	h.mu.Unlock()
}
