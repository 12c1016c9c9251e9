// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Interval values accept bare seconds or a
// case-insensitive "s"/"m" suffix, and byte sizes accept "k"/"m"/"g"/"t" suffixes.
//
// # Configuration Structure
//
// Server settings:
//
//	PVS_HOST="0.0.0.0"
//	PVS_PORT="3000"
//	PVS_READ_TIMEOUT="5m"
//	PVS_WRITE_TIMEOUT="5m"
//
// Source settings:
//
//	PVS_FILES="/mnt/files"
//	PVS_MAX_FILE_SIZE="500m"   # 0 = unbounded
//	PVS_MAX_UPLOAD="800m"
//
// Preview settings:
//
//	PVS_DEFAULT_FORMAT="image"  # image, pdf
//	PVS_DEFAULT_WIDTH="320"
//	PVS_DEFAULT_HEIGHT="240"
//	PVS_MAX_WIDTH="800"
//	PVS_MAX_HEIGHT="600"
//	PVS_MAX_PAGES="10"
//
// Store settings:
//
//	PVS_STORE="/mnt/store"      # unset disables the store
//	PVS_CACHE_CONTROL="300"     # bare numbers are minutes
//	PVS_X_ACCEL_REDIRECT="/previews"
//	PVS_CLEANUP_INTERVAL="60"
//	PVS_CLEANUP_MAX_SIZE="10g"
//	PVS_CLEANUP_MAX_AGE="7200"
//
// Office converter settings:
//
//	PVS_SOFFICE_ADDR="127.0.0.1"
//	PVS_SOFFICE_PORT="2002"
//	PVS_SOFFICE_TIMEOUT="12"
//	PVS_SOFFICE_RETRY="3"
//
// Observability settings:
//
//	PVS_LOGLEVEL="warning"      # debug, info, warn, error
//	PVS_HTTP_LOGLEVEL="info"
//	PVS_METRICS="on"
//	PVS_OTEL_ENABLED="true"
//	PVS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s\n", cfg.Server.Addr())
//	fmt.Printf("Files: %s\n", cfg.Source.FileRoot)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/source: Uses source configuration
//   - pkg/store: Uses store configuration
//   - pkg/observability: Uses observability configuration
package config
