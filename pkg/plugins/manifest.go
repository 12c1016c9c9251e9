package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest loads and parses a plugin manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &manifest, nil
}

// LoadManifestFromDir loads a plugin manifest from a directory (looks for
// plugin.yaml).
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, "plugin.yaml"))
}

// ValidateManifest performs basic validation on a plugin manifest.
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errors []ValidationError

	if manifest.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "Plugin name is required",
		})
	}

	if manifest.Version == "" {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: "Version is required",
		})
	} else if !isValidSemver(manifest.Version) {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.Version),
		})
	}

	if manifest.APIVersion == "" {
		errors = append(errors, ValidationError{
			Field:   "api_version",
			Message: "API version is required",
		})
	} else if !isValidSemver(manifest.APIVersion) {
		errors = append(errors, ValidationError{
			Field:   "api_version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.APIVersion),
		})
	}

	switch manifest.Type {
	case PluginTypeProxy, PluginTypeS3:
	case "":
		errors = append(errors, ValidationError{
			Field:   "type",
			Message: "Plugin type is required",
		})
	default:
		errors = append(errors, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("Invalid plugin type: %s (supported: proxy, s3)", manifest.Type),
		})
	}

	return errors
}

// isValidSemver checks if a version string follows semantic versioning.
func isValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// IsCompatibleAPIVersion checks if a plugin's API version is compatible with
// the running service. Major versions must match.
func IsCompatibleAPIVersion(pluginAPIVersion, serviceAPIVersion string) bool {
	return extractMajorVersion(pluginAPIVersion) == extractMajorVersion(serviceAPIVersion)
}

func extractMajorVersion(version string) string {
	matches := semverRegex.FindStringSubmatch(version)
	if len(matches) > 1 {
		return matches[1]
	}
	return "0"
}

// setting reads a manifest setting with a default.
func (m *Manifest) setting(key, def string) string {
	if v, ok := m.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// requireSetting reads a manifest setting that must be present.
func (m *Manifest) requireSetting(key string) (string, error) {
	v := m.Settings[key]
	if v == "" {
		return "", fmt.Errorf("plugin %s: missing required setting %q", m.Name, key)
	}
	return v, nil
}
