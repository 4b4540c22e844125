// Package logging builds the slog loggers used across facet.
//
// New constructs a logger from explicit options; NewFromConfig derives those
// options from application config and tees output into the configured log
// directory. Attr helpers keep call sites terse and standardize field names
// (component, stage, session_id, job_id) so log streams from the session
// store, the engine adapter, and the job workers can be correlated.
package logging
