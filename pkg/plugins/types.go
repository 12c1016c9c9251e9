package plugins

import (
	"context"
	"net/http"
)

// Plugin is the base interface all path plugins implement. A plugin mounts
// one route on the preview router and resolves incoming requests to local
// files with stable cache identities.
type Plugin interface {
	Resolver
	Manifest() *Manifest
	Load() error
	Unload() error
}

// Resolver maps an incoming request to a previewable input. Implementations
// own authentication and authorization for their route; the preview handler
// trusts the returned origin as the caller-scoped cache identity.
type Resolver interface {
	// Pattern is the mux route pattern the plugin mounts at, e.g.
	// "/docs/{uri:.*}".
	Pattern() string

	// Methods lists the HTTP methods the route accepts.
	Methods() []string

	// Resolve produces the local input file and its origin for a request.
	Resolve(ctx context.Context, r *http.Request) (*Resolved, error)
}

// Resolved is a successfully resolved input.
type Resolved struct {
	// Path is the local filesystem location of the input.
	Path string

	// Origin is the stable, caller-scoped cache identity.
	Origin string

	// Name optionally overrides the display name (and with it backend
	// selection); empty means the basename of Origin.
	Name string
}

// Manifest describes plugin metadata, read from plugin.yaml.
type Manifest struct {
	Name        string            `yaml:"name"`        // Unique name (e.g. "docs-proxy")
	Version     string            `yaml:"version"`     // Semver
	APIVersion  string            `yaml:"api_version"` // Plugin API version
	Description string            `yaml:"description"` // Short description
	Author      string            `yaml:"author"`      // Author name
	Type        PluginType        `yaml:"type"`        // Plugin type
	Settings    map[string]string `yaml:"settings"`    // Type-specific settings
}

// PluginType defines the category of plugin.
type PluginType string

const (
	// PluginTypeProxy resolves paths through an upstream file service,
	// authenticating with a session cookie.
	PluginTypeProxy PluginType = "proxy"

	// PluginTypeS3 resolves paths to objects in an S3 bucket.
	PluginTypeS3 PluginType = "s3"
)

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
