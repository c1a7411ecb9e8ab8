// Package postgres provides PostgreSQL-backed implementations of the
// pipeline's store interfaces.
package postgres
