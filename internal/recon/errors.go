package recon

import "errors"

var (
	// ErrUnknownJob indicates the job id does not exist.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInsufficientImages indicates the session has fewer images than the
	// configured reconstruction minimum. No job is created.
	ErrInsufficientImages = errors.New("not enough images for reconstruction")
	// ErrJobNotReady indicates an artifact request against a job that has not
	// completed.
	ErrJobNotReady = errors.New("job has not completed")
	// ErrUnsupportedFormat indicates an artifact format outside ply/obj/glb.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")
	// ErrArtifactMissing indicates the recorded artifact path no longer
	// exists on disk.
	ErrArtifactMissing = errors.New("artifact missing from disk")
	// ErrBusy indicates the job queue is full. Callers should retry later.
	ErrBusy = errors.New("job queue full")
)
