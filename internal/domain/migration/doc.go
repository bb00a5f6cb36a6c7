// Package migration upgrades persisted hot-exit sessions to the current schema.
//
// Sessions move forward one version at a time (v1 -> v2 -> ... -> current).
// Each step is a pure function from a session at version N to a session at
// version N+1 that fills defaults for fields introduced in N+1.
//
// Rules:
//   - Version 0 is invalid and never migrates
//   - Versions newer than the running build are rejected (no downgrade)
//   - A missing step fails with ErrMigrationGap instead of looping
//
// Example Usage:
//
//	if migration.NeedsMigration(s) {
//	    s, err = migration.Migrate(s)
//	}
package migration
