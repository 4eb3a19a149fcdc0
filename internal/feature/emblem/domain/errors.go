// Package domain defines domain-level errors for the emblem feature.
package domain

import "errors"

var (
	// ErrEndOfStream indicates that a frame source has no more frames.
	ErrEndOfStream = errors.New("end of stream")

	// ErrFrameUnavailable indicates that a single frame of a multi-image source could not be
	// fetched or decoded. The pipeline reports it and moves on to the next frame.
	ErrFrameUnavailable = errors.New("frame unavailable")

	// ErrFrameRead indicates that a frame source became unreadable. It ends the run cleanly.
	ErrFrameRead = errors.New("frame read failed")

	// ErrModelInference indicates that the detector could not process a frame.
	// Only the current frame is affected.
	ErrModelInference = errors.New("model inference failed")

	// ErrEnrichmentTransport indicates that the remote information service call failed.
	// It is isolated to one label through a failed EnrichmentResult.
	ErrEnrichmentTransport = errors.New("enrichment transport failed")

	// ErrStopRequested is returned by an output sink when the user asked to quit.
	ErrStopRequested = errors.New("stop requested")

	// ErrSessionNotFound indicates that no report was recorded under the given session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID indicates a malformed session id.
	ErrInvalidSessionID = errors.New("invalid session id")
)
