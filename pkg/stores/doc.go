// Package stores persists discovery run history in SQLite. A run stores
// the per-assembly settings, every discovered test case and the lint
// violations found for it, so runs can be listed, inspected and compared.
package stores
