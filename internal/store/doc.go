// Package store provides SQLite-backed durable storage for recorded runs.
//
// A run is stored once with all its trace entries. Records are never
// updated; writing a run whose ID already exists does nothing.
//
// # Ordering
//
// Every query has a deterministic ORDER BY: runs by ID (UUIDv7, so by
// creation time), entries by sequence number. Two reads of the same
// database return the same rows in the same order.
//
// # Schema
//
// Open runs schema.sql and then the migrations a database is missing,
// tracked by PRAGMA user_version. Connections use WAL journaling, a 5s busy
// timeout and enforced foreign keys.
//
// Trace digests are computed by package trace with the canonical JSON and
// domain separated hashing of package ir; VerifyRun recomputes them.
package store
