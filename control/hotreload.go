// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reloadable configuration holder. Listeners run synchronously in
// registration order so callers can sequence reload effects.

package control

import (
	"sync"
	"sync/atomic"
)

// Reloader keeps the active configuration and re-reads it on demand.
type Reloader struct {
	path    string
	current atomic.Pointer[Config]

	mu    sync.Mutex
	hooks []func(old, cur *Config)
}

// NewReloader loads path once and returns a holder for it.
func NewReloader(path string) (*Reloader, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	r := &Reloader{path: path}
	r.current.Store(cfg)
	return r, nil
}

// Config returns the active configuration. Callers must not mutate it.
func (r *Reloader) Config() *Config { return r.current.Load() }

// OnReload registers fn to observe configuration changes.
func (r *Reloader) OnReload(fn func(old, cur *Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload re-reads the configuration. On error the active configuration
// is kept and no hook runs.
func (r *Reloader) Reload() error {
	cfg, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current.Swap(cfg)
	for _, fn := range r.hooks {
		fn(old, cfg)
	}
	return nil
}
