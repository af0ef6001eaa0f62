package ledger

import "errors"

// ErrStaleState reports an optimistic-concurrency conflict: the entry's
// status changed between read and write. Callers re-read and re-attempt;
// this is internal coordination, never a user-visible failure.
var ErrStaleState = errors.New("ledger entry state is stale")

// ErrInvalidTransition reports an advance that would violate the fixed
// pipeline order. Reaching it indicates a driver bug, not a data race.
var ErrInvalidTransition = errors.New("invalid ledger transition")
