package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// CurrentAPIVersion is the plugin API version this service speaks.
const CurrentAPIVersion = "1.0.0"

// Loader discovers and loads path plugins from filesystem directories. Each
// plugin lives in its own subdirectory holding a plugin.yaml manifest.
type Loader struct {
	pluginDirs    []string
	proxyCacheURL string
	loadedPlugins map[string]Plugin
	mu            sync.RWMutex
	log           *logrus.Logger
}

// NewLoader creates a new plugin loader. proxyCacheURL is the default redis
// URL for proxy plugins that do not configure their own.
func NewLoader(dirs []string, proxyCacheURL string, log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}

	return &Loader{
		pluginDirs:    dirs,
		proxyCacheURL: proxyCacheURL,
		loadedPlugins: make(map[string]Plugin),
		log:           log,
	}
}

// DiscoverPlugins scans plugin directories and returns the plugins that
// loaded successfully. A broken plugin is logged and skipped; it never takes
// the service down.
func (l *Loader) DiscoverPlugins(ctx context.Context) ([]Plugin, error) {
	var discovered []Plugin

	for _, dir := range l.pluginDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			l.log.Debugf("Plugin directory does not exist: %s", dir)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			l.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			pluginDir := filepath.Join(dir, entry.Name())
			plugin, err := l.loadPluginFromDir(ctx, pluginDir)
			if err != nil {
				l.log.WithField("plugin", entry.Name()).Warnf("Failed to load plugin from %s: %v", pluginDir, err)
				continue
			}

			discovered = append(discovered, plugin)
		}
	}

	return discovered, nil
}

// LoadPlugin loads a single plugin from a directory.
func (l *Loader) LoadPlugin(ctx context.Context, path string) (Plugin, error) {
	return l.loadPluginFromDir(ctx, path)
}

// UnloadPlugin unloads a plugin by name.
func (l *Loader) UnloadPlugin(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	plugin, exists := l.loadedPlugins[name]
	if !exists {
		return fmt.Errorf("plugin not loaded: %s", name)
	}

	if err := plugin.Unload(); err != nil {
		return fmt.Errorf("failed to unload plugin: %w", err)
	}

	delete(l.loadedPlugins, name)
	return nil
}

// ListLoadedPlugins returns all loaded plugins.
func (l *Loader) ListLoadedPlugins() []Plugin {
	l.mu.RLock()
	defer l.mu.RUnlock()

	loaded := make([]Plugin, 0, len(l.loadedPlugins))
	for _, plugin := range l.loadedPlugins {
		loaded = append(loaded, plugin)
	}

	return loaded
}

// loadPluginFromDir loads one plugin from its directory.
func (l *Loader) loadPluginFromDir(ctx context.Context, pluginDir string) (Plugin, error) {
	manifest, err := LoadManifestFromDir(pluginDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	if validationErrors := ValidateManifest(manifest); len(validationErrors) > 0 {
		return nil, fmt.Errorf("manifest validation failed: %v", validationErrors)
	}

	if !IsCompatibleAPIVersion(manifest.APIVersion, CurrentAPIVersion) {
		return nil, fmt.Errorf("incompatible API version: plugin requires %s, service is %s",
			manifest.APIVersion, CurrentAPIVersion)
	}

	var plugin Plugin
	switch manifest.Type {
	case PluginTypeProxy:
		plugin, err = NewProxyPlugin(manifest, l.proxyCacheURL, l.log)
	case PluginTypeS3:
		plugin, err = NewS3Plugin(manifest)
	default:
		return nil, fmt.Errorf("unsupported plugin type: %s", manifest.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build plugin: %w", err)
	}

	if err := plugin.Load(); err != nil {
		return nil, fmt.Errorf("plugin load failed: %w", err)
	}

	l.mu.Lock()
	l.loadedPlugins[manifest.Name] = plugin
	l.mu.Unlock()

	l.log.WithField("plugin", manifest.Name).Infof("Loaded plugin: %s v%s (type: %s, route: %s)",
		manifest.Name, manifest.Version, manifest.Type, plugin.Pattern())

	return plugin, nil
}
