// Package trace records what a scheduler does, one entry per observable
// step, and summarizes a run with a content-addressed digest.
//
// A Recorder is attached to a scheduler as an observer. Entries carry the
// scheduler time at which they happened and a sequence number; two runs of
// the same scenario produce the same entries, so the digest of a run can be
// compared across machines and stored next to the run.
package trace
