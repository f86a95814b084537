package clientproxy

import (
	"context"
	"sync"

	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// ClientStation groups named proxy trees that share one Runtime into a
// single namespace, so an application can address "the station's dmm"
// rather than threading individual proxies through its call sites.
// Supplemented from original_source/instrumentserver/client/application.py's
// ClientStation, which plays the same role for GUI-driven clients.
type ClientStation struct {
	runtime *Runtime

	mu          sync.RWMutex
	instruments map[string]*InstrumentProxy
}

// NewClientStation creates an empty station backed by runtime.
func NewClientStation(runtime *Runtime) *ClientStation {
	return &ClientStation{runtime: runtime, instruments: make(map[string]*InstrumentProxy)}
}

// Add attaches to an existing server-side instrument and registers its
// proxy tree under name within the station.
func (s *ClientStation) Add(ctx context.Context, name string) (*InstrumentProxy, error) {
	proxy, err := s.runtime.Instrument(ctx, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.instruments[name] = proxy
	s.mu.Unlock()
	return proxy, nil
}

// FindOrCreate attaches to name if it already exists on the server, or
// creates it from classPath, then registers the resulting proxy tree
// within the station under name.
func (s *ClientStation) FindOrCreate(ctx context.Context, name, classPath string, args []any, kwargs map[string]any) (*InstrumentProxy, error) {
	proxy, err := s.runtime.FindOrCreateInstrument(ctx, name, classPath, args, kwargs)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.instruments[name] = proxy
	s.mu.Unlock()
	return proxy, nil
}

// Get returns the proxy tree previously registered under name.
func (s *ClientStation) Get(name string) (*InstrumentProxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proxy, ok := s.instruments[name]
	if !ok {
		return nil, serverr.NotFoundf("ClientStation", "Get", "no instrument named %q in station", name)
	}
	return proxy, nil
}

// Remove drops name from the station's namespace without affecting the
// server-side instrument.
func (s *ClientStation) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instruments, name)
}

// Names lists every instrument currently registered in the station.
func (s *ClientStation) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.instruments))
	for name := range s.instruments {
		names = append(names, name)
	}
	return names
}

// Refresh re-fetches name's blueprint from the server and rebuilds its
// proxy tree in place, picking up parameters or methods added after the
// station first attached (e.g. via add_parameter on a parameter manager).
func (s *ClientStation) Refresh(ctx context.Context, name string) (*InstrumentProxy, error) {
	return s.Add(ctx, name)
}
