// Package shared provides common utilities and test helpers used across
// the pipeline packages.
//
// The testutil subpackage holds the buffered slog handler tests use to
// assert on emitted diagnostics, and the vendor-file fixture writers
// that produce .xlsx and .csv extracts in the shapes the adapters
// ingest. Nothing here carries business logic; domain-specific code
// belongs to the package that owns it.
package shared
