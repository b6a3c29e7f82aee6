// Package postgres provides PostgreSQL implementations of the store
// interfaces. It maps database errors to store sentinels and enforces
// the request lifecycle graph in its update guard clauses, so no layer
// above it can push a request backwards or mutate a terminal row.
package postgres
