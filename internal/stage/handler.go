package stage

import (
	"context"
	"log/slog"

	"folio/internal/catalog"
)

// Handler describes the contract the pipeline manager needs from each stage.
type Handler interface {
	// CanProcess reports whether the item is in a state this stage accepts.
	CanProcess(item *catalog.Item) bool
	// Process performs the stage work and mutates the item in place.
	// Handlers never write item statuses; outcomes travel back through the
	// returned error (or its absence) and the pipeline applies the
	// transition.
	Process(ctx context.Context, item *catalog.Item) error
	HealthCheck(ctx context.Context) Health
}

// LoggerAware is implemented by handlers that accept a routed logger so
// stage output carries the dispatching task's context fields.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
