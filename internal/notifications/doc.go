// Package notifications delivers pipeline events to a Telegram chat.
//
// Delivery is strictly best-effort: every call returns a success boolean,
// never an error, and a disabled configuration degrades to a no-op. Stage
// wrappers and the orchestrator emit consistent messages through the Service
// interface without duplicating HTTP glue.
package notifications
