// Package cli implements the command-line interface for fomc-docs.
//
// The cli package provides the Cobra-based CLI: collect runs the collection
// pipeline, serve exposes the Collection Log over HTTP, summary reports on the
// persisted log, and config prints the effective configuration. It wires the
// config, fetch, scraper, verify, storage and collect packages together and
// maps run-fatal errors to process exit codes.
package cli
