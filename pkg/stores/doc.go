// Package stores provides the machine-scoped SQLite state shared by every geobuild
// invocation on a host: update-check timestamps keyed by dependency identity and a short
// history of generation passes. The database runs in WAL mode with immediate
// transactions and a busy timeout, so parallel build jobs can use it concurrently.
package stores
