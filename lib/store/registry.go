package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Backends register themselves from init, so the set is fixed once main
// starts. lib/store/all pulls in every backend BOTCHA ships.
var (
	registry = map[string]Factory{}
	regLock  sync.RWMutex
)

// Factory builds a store backend from the "parameters" object of the
// store section in botcha.yaml.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

// Register makes a backend available under name. Registering the same name
// twice is a programming error and panics.
func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("store: backend %q registered twice", name))
	}

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

// Methods lists the registered backend names in sorted order.
func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
