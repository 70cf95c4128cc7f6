// Package startup loads configuration and logs the application lifecycle.
//
// # Configuration
//
// Configuration comes from, in increasing precedence:
//
//   - built-in defaults registered by [SetDefaults]
//   - a YAML file: the --config flag, or atelier.yaml in the working
//     directory or /etc/atelier
//   - environment variables prefixed with ATELIER_, with dots replaced by
//     underscores (scan.batch_size is ATELIER_SCAN_BATCH_SIZE)
//
// .env and .env.local files in the working directory and next to an explicit
// config file are loaded into the environment first and never override
// variables that are already set.
//
// [Load] decodes the result into [Config] and validates it. [WriteYAML]
// renders a Config, which is how `atelier config generate` produces a
// starting file.
//
// # Directory Setup
//
// [Config.Prepare] resolves paths to absolute form and checks:
//
//   - the database directory, which must exist (or be creatable) and be
//     writable
//   - the thumbnail directory under cache_dir, which is optional; when it
//     cannot be written thumbnails are disabled
//
// # Lifecycle Logging
//
// The Log* functions print the sectioned startup and shutdown output shared
// by the serve command, including the registered routes at debug level.
package startup
