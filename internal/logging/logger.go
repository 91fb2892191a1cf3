// Package logging decouples the services from a concrete log backend.
// The server wires slog behind it; tests plug in buffers or discard.
package logging

import "context"

// Logger writes structured records as alternating key/value args:
//
//	log.Warn(ctx, "capacity drift detected", "sheet", sheet, "buckets", n)
//
// Every call takes the request context so a backend can pick up trace
// attributes from it.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With binds key/value pairs onto every record of the returned
	// logger. Services use it to tag their component name once.
	With(args ...any) Logger
}
