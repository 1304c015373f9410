package mast

import "fmt"

// CollectionError wraps any unrecoverable error raised while submitting,
// collecting or aggregating, carrying the in-flight job records that were
// never reconciled so callers can inspect (and manually clean up) the units
// still outstanding on the backend.
type CollectionError struct {
	Err      error
	InFlight map[string]JobRecord
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("mast collection failed with %d job(s) unreconciled: %v", len(e.InFlight), e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}
