// Package registry provides a global registry of script engines.
// Engines register themselves in init() functions, allowing the runtime
// and the CLI to look them up by name without hardcoded dependencies.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/pixelbox/internal/script"
)

// EngineInfo contains metadata about a registered engine.
type EngineInfo struct {
	Name  string
	Title string
}

// Factory creates a new engine instance.
type Factory func() script.Engine

var (
	factories = make(map[string]Factory)
	titles    = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds an engine factory to the registry.
// Typically called from an engine package's init() function.
// Panics if an engine with the same name is already registered.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("registry: engine %q already registered", name))
	}

	factories[name] = f
	titles[name] = f().Title()
}

// List returns all registered engines, sorted by name.
func List() []EngineInfo {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]EngineInfo, 0, len(factories))
	for name := range factories {
		result = append(result, EngineInfo{
			Name:  name,
			Title: titles[name],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Create instantiates an engine by name.
// Returns an error if the name is not registered.
func Create(name string) (script.Engine, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown engine %q", name)
	}

	return f(), nil
}

// Exists checks if an engine with the given name is registered.
func Exists(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[name]
	return ok
}
