// Package ir defines scenario documents: declarative descriptions of fiber
// programs, the external actions applied to them while the clock runs, and
// the expectations checked at the end.
//
// This package contains type definitions, decoding and canonical
// serialization only. It imports nothing internal except timeval, so that
// compiler, harness, trace and store can all depend on it.
//
// Key design constraints:
//   - times are milliseconds of virtual time; documents may write them as
//     numbers or as time value strings ("1.5s", "00:01:30", "indefinite")
//   - every op names exactly one kind
//   - all JSON and YAML keys use snake_case
//   - canonical JSON (RFC 8785 ordering, NFC strings) is the only input to
//     hashes
package ir
