// Package logging builds the shared slog loggers (console and JSON handlers),
// re-exports attribute helpers, and defines the standardized field keys used
// across pipeline components.
package logging
