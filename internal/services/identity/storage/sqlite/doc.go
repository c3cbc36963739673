// Package sqlite provides SQLite-backed identity persistence.
//
// It is the default on-disk store for users, sessions, credentials, tenants
// and network devices, with bundled migrations applied on open.
package sqlite
