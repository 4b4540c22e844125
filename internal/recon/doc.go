// Package recon orchestrates reconstruction jobs: it validates sessions,
// queues work onto a bounded worker pool, drives the geometry engine and
// post-processing pipeline, and exposes pollable job status and artifact
// downloads backed by a SQLite job store.
package recon
