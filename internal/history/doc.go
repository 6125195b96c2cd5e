// Package history keeps the append-only JSONL event journal shared by all
// pipeline stages, with one-level size-based rotation and a reader that also
// accepts the legacy single-array form.
package history
