// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dynamic key/value tuning shared between an embedding host and the
// engine loop. Writers merge updates; readers take snapshots or use the
// typed accessor. Reload listeners run on their own goroutines, so a
// listener feeding a poll loop must stage its result through an atomic
// slot rather than touch loop state directly.

package control

import "sync"

// ConfigStore holds dynamic tuning values with reload notification.
type ConfigStore struct {
	mu        sync.RWMutex
	values    map[string]any
	listeners []func()
}

// NewConfigStore returns an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{values: make(map[string]any)}
}

// GetSnapshot copies the current values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.values))
	for k, v := range cs.values {
		out[k] = v
	}
	return out
}

// Int reads a key as an int, falling back to def when the key is absent
// or holds another type.
func (cs *ConfigStore) Int(key string, def int) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if v, ok := cs.values[key].(int); ok {
		return v
	}
	return def
}

// SetConfig merges updates and notifies reload listeners.
func (cs *ConfigStore) SetConfig(update map[string]any) {
	cs.mu.Lock()
	for k, v := range update {
		cs.values[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		go fn()
	}
}

// OnReload registers a hook invoked after each SetConfig.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
