// Package cmd implements the httptask CLI commands using Cobra.
//
// Available commands:
//   - send: Execute a single HTTP request through the task engine
//   - history: Show or clear previously recorded requests
//   - version: Show httptask version information
//
// The CLI supports config file profiles, retry and auth flags, JSON
// extraction, schema validation, and watch mode for development workflows.
package cmd
