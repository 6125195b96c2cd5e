// Package services defines the error taxonomy shared by pipeline stages and
// the sentinel-tagging helper used to classify failures at the orchestrator.
package services
