// Package testutil holds helpers shared by tests: a fake wall clock for
// realtime clocks and in-memory scenario filesystems.
package testutil
