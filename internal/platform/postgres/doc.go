// Package postgres provides PostgreSQL implementations of the store
// interfaces using database/sql over the pgx driver, plus shared mapping
// from driver errors to the store package's sentinel errors.
package postgres
