// Package internal holds the Orbit server internals.
//
// The tree is organized by responsibility:
// - api: HTTP handlers, middleware, rendering, and routing
// - domain: events, users, and the shared error taxonomy
// - storage: SQL dialects, migrations, and repositories (SQLite and Postgres)
// - jobs: the retention sweep and its River scheduling
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
