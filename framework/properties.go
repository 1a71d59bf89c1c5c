package framework

import (
	"os"
	"sync"
)

// Properties is the framework property store: explicit configuration wins
// over the process environment, which wins over unset. AddProperty is
// write-once per key — a second call for the same name returns false and
// leaves the first value in place. It has its own non-reentrant lock,
// separate from the framework's bundle/registry state, per the concurrency
// model.
type Properties struct {
	mu     sync.Mutex
	values map[string]string
}

// NewProperties seeds the store from explicit config, falling back to the
// process environment for any name present in envNames but absent from
// config.
func NewProperties(config map[string]string, envNames []string) *Properties {
	p := &Properties{values: make(map[string]string, len(config)+len(envNames))}
	for _, name := range envNames {
		if v, ok := os.LookupEnv(name); ok {
			p.values[name] = v
		}
	}
	for k, v := range config {
		p.values[k] = v
	}
	return p
}

// Get returns the property's current value.
func (p *Properties) Get(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	return v, ok
}

// AddProperty sets name to value only if it is not already present.
// Returns false, keeping the existing value, if name was already set.
func (p *Properties) AddProperty(name, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.values[name]; exists {
		return false
	}
	p.values[name] = value
	return true
}
