package pipeline

import (
	"context"
	"errors"
)

var (
	// ErrTimedOut is returned by BoundedChannel.Get when no item arrived in time
	ErrTimedOut = errors.New("pipeline: channel get timed out")
	// ErrEndOfStream is returned by FrameSource.Next when the source is exhausted or failed
	ErrEndOfStream = errors.New("pipeline: end of stream")
	// ErrSourceUnavailable is returned when the capture source cannot be opened
	ErrSourceUnavailable = errors.New("pipeline: source unavailable")
	// ErrDetectorTimeout marks a prediction that exceeded its time budget
	ErrDetectorTimeout = errors.New("pipeline: detector timed out")
	// ErrAlreadyRunning is returned when Run is called on a running pipeline
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrSourceExhausted is the shutdown reason when the source runs out of frames
	ErrSourceExhausted = errors.New("source exhausted")
	// ErrUserStop is the shutdown reason when the display sink requests a stop
	ErrUserStop = errors.New("stop requested by user")
	// ErrStopped is the shutdown reason when the pipeline is stopped by its owner
	ErrStopped = errors.New("pipeline stopped")
	// ErrFrameLimit is the shutdown reason when the configured frame limit is reached
	ErrFrameLimit = errors.New("frame limit reached")
)

// isCleanShutdown reports whether reason ends a run without error
func isCleanShutdown(reason error) bool {
	return reason == nil ||
		errors.Is(reason, ErrSourceExhausted) ||
		errors.Is(reason, ErrUserStop) ||
		errors.Is(reason, ErrStopped) ||
		errors.Is(reason, ErrFrameLimit) ||
		errors.Is(reason, context.Canceled) ||
		errors.Is(reason, context.DeadlineExceeded)
}
