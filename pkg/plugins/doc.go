// Package plugins implements path-resolver plugins: routes mounted on the
// preview router that translate caller-facing identifiers (user files behind
// an upstream service, S3 object keys) into local input files and stable,
// caller-scoped cache origins.
//
// Plugins are discovered from manifest directories at startup:
//
//	<plugin-dir>/
//	    docs-proxy/
//	        plugin.yaml
//	    assets-s3/
//	        plugin.yaml
//
// A plugin.yaml names the plugin, pins its API version and selects a
// compiled-in plugin type with its settings:
//
//	name: docs-proxy
//	version: 1.0.0
//	api_version: 1.0.0
//	type: proxy
//	settings:
//	  pattern: "/docs/{uri:.*}"
//	  key: "shared-session-secret"
//	  upstream: "https://files.internal/"
//	  remap: "/protected:/mnt/files"
//
// Discovery never fails the service: broken plugins are logged and skipped.
package plugins
