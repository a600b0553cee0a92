// Package stores holds auxiliary per-device key/value state written by
// CENV rule assignments and read back by CENV/CENVS conditions. It ships
// an in-memory implementation and a SQLite-based one with WAL mode and
// embedded migrations for state that survives daemon restarts.
package stores
