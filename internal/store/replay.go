package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tempo/internal/trace"
)

// ErrDigestMismatch is returned when stored entries do not hash to the
// stored digest.
var ErrDigestMismatch = errors.New("trace digest mismatch")

// VerifyRun loads a run and recomputes the digest of its entries.
func (s *Store) VerifyRun(ctx context.Context, id string) (trace.Run, error) {
	run, err := s.LoadRun(ctx, id)
	if err != nil {
		return run, err
	}
	digest, err := trace.Digest(run.Entries)
	if err != nil {
		return run, fmt.Errorf("verify run %s: %w", id, err)
	}
	if digest != run.Digest {
		return run, fmt.Errorf("%w: run %s stored %s, entries hash to %s", ErrDigestMismatch, id, run.Digest, digest)
	}
	return run, nil
}

// CompareRuns reports whether two stored runs recorded the same trace.
func (s *Store) CompareRuns(ctx context.Context, a, b string) (bool, error) {
	ra, err := s.VerifyRun(ctx, a)
	if err != nil {
		return false, err
	}
	rb, err := s.VerifyRun(ctx, b)
	if err != nil {
		return false, err
	}
	return ra.Digest == rb.Digest, nil
}
