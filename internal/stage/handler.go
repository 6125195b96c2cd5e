package stage

import "context"

// Handler describes the contract the pipeline orchestrator needs from each
// stage. Execute runs the stage to completion; a non-nil error aborts the
// scenario.
type Handler interface {
	Name() string
	Execute(ctx context.Context) error
	HealthCheck(ctx context.Context) Health
}
