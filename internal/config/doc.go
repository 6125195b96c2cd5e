// Package config loads, defaults, normalizes, and validates the pipeline
// configuration document. Load always yields a complete document: defaults
// fill absent keys, paths expand to absolute form, and ranged integers are
// clamped before validation runs.
package config
