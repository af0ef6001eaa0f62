package stage

import (
	"context"

	"switchboard/internal/ledger"
)

// Handler describes the contract the pipeline driver needs from each stage
// adapter. Handlers mutate the entry they are given (artifact references,
// stage results) and never touch the ledger directly. One handler instance
// serves every worker, so handlers hold no per-entry state; the driver hands
// them a request-scoped logger on the context via logging.FromContext.
type Handler interface {
	// Prepare performs cheap validation and setup before Execute. Input
	// problems surface here as services.ErrInvalidInput.
	Prepare(context.Context, *ledger.Entry) error
	// Execute performs the stage work, blocking on external calls. It must be
	// safe to re-run on the same input artifact.
	Execute(context.Context, *ledger.Entry) error
	HealthCheck(context.Context) Health
}
