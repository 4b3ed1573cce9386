// Package repository persists normalized telemetry records to PostgreSQL
// and serves the read queries behind the dashboard API.
package repository

import "errors"

var (
	// ErrSchemaMissing is returned when a write targets optional schema
	// that does not exist in this deployment (SQLSTATE 42P01). Callers are
	// expected to treat it as "feature disabled", not as a failure.
	ErrSchemaMissing = errors.New("optional relation does not exist")

	// ErrNotFound is returned by lookups that matched no row.
	ErrNotFound = errors.New("not found")
)
