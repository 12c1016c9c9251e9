package plugins

import (
	"fmt"
	"sync"
)

var (
	// registry is the package-level plugin map, keyed by manifest name.
	registry = make(map[string]Plugin)
	// mu protects concurrent access to the registry.
	mu sync.RWMutex
)

// Register adds a plugin to the registry.
func Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("cannot register nil plugin")
	}

	manifest := plugin.Manifest()
	if manifest == nil {
		return fmt.Errorf("plugin has nil manifest")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[manifest.Name]; exists {
		return fmt.Errorf("plugin already registered: %s", manifest.Name)
	}

	registry[manifest.Name] = plugin
	return nil
}

// Unregister removes a plugin from the registry.
func Unregister(name string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; !exists {
		return fmt.Errorf("plugin not found: %s", name)
	}

	delete(registry, name)
	return nil
}

// Get retrieves a plugin by name.
func Get(name string) (Plugin, error) {
	mu.RLock()
	defer mu.RUnlock()

	plugin, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("plugin not found: %s", name)
	}

	return plugin, nil
}

// Has checks if a plugin is registered.
func Has(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, exists := registry[name]
	return exists
}

// List returns all registered plugins.
func List() []Plugin {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]Plugin, 0, len(registry))
	for _, plugin := range registry {
		result = append(result, plugin)
	}

	return result
}

// Count returns the number of registered plugins.
func Count() int {
	mu.RLock()
	defer mu.RUnlock()

	return len(registry)
}

// Clear removes all plugins from the registry.
func Clear() {
	mu.Lock()
	defer mu.Unlock()

	registry = make(map[string]Plugin)
}
