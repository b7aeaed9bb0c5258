// Package store provides abstractions for data persistence: store
// interfaces, shared sentinel errors, the DBTX database abstraction, and
// transaction helpers. Concrete implementations live under
// internal/platform/postgres.
package store
