// Package cmd provides the command-line interface for charoster.
//
// Every command builds an app.App from the loaded configuration, discovers
// the packs of the work folder and waits for the load queues to drain before
// answering.
//
// # Available Commands
//
//   - list: List the entities of a type, the packs, or the definitions
//   - show: Print one entity
//   - definition: Print a definition, one of its entities, or a field value
//   - image: Derive a sized and themed alt image
//   - serve: Serve the query surface over HTTP and stream events on /ws
//   - watch: Reload the packs whenever a pack file changes
//   - version: Print build information
//
// # Command Examples
//
//	// List characters as a table
//	charoster list characters
//
//	// Show one entity as YAML
//	charoster show characters "demo>hero" --format yaml
//
//	// Read one field of a franchise
//	charoster definition franchise mario name
//
//	// Write a banner crop of an alt image
//	charoster image characters "demo>hero>alt1" --size banner --out hero.png
//
//	// Serve on another port
//	charoster serve --port 9000
//
// # Configuration
//
// Settings come from .charoster.yml, the file named by --config or
// CHAROSTER_CONFIG_FILE, and CHAROSTER_ environment variables such as
// CHAROSTER_WORK_FOLDER and CHAROSTER_SERVER_PORT.
package cmd
