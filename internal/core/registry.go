package core

import (
	"fmt"
	"sort"
	"sync"
)

// DatasetDefinition declares one input dataset: where its archive lives and
// which columns it keeps with which types.
type DatasetDefinition struct {
	Name    string
	Archive string
	Types   TypeDict
}

var (
	registry   = make(map[string]DatasetDefinition)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if a dataset with the same name is already registered.
func Register(def DatasetDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if def.Name == "" {
		panic("dataset definition without name")
	}
	if _, exists := registry[def.Name]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.Name))
	}
	if def.Archive == "" {
		def.Archive = fmt.Sprintf("data/%s.zip", def.Name)
	}

	registry[def.Name] = def
}

// Get returns a dataset definition by name.
func Get(name string) (DatasetDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[name]
	return def, ok
}

// MustGet is like Get but panics on unknown names.
func MustGet(name string) DatasetDefinition {
	def, ok := Get(name)
	if !ok {
		panic(fmt.Sprintf("dataset not registered: %s", name))
	}
	return def
}

// All returns all registered datasets sorted by name.
func All() []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DatasetDefinition)
}
