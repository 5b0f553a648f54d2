package pipeline

import "time"

// Clock returns the current time
type Clock func() time.Time

// Stats accumulates frame and inference counters for one run.
// It has a single writer (the render stage) and needs no locking; other
// goroutines read published StatsSnapshot values instead.
type Stats struct {
	now            Clock
	start          time.Time
	frames         uint64
	inferCalls     uint64
	cumulativeTime time.Duration
}

// StatsSnapshot is an immutable view of Stats
type StatsSnapshot struct {
	Frames     uint64        `json:"frames"`
	InferCalls uint64        `json:"infer_calls"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	FPS        float64       `json:"fps"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
	StartedAt  time.Time     `json:"started_at"`
}

// AvgLatencyMs returns the average latency in milliseconds
func (s StatsSnapshot) AvgLatencyMs() float64 {
	return float64(s.AvgLatency) / float64(time.Millisecond)
}

// NewStats starts the clock; a nil clock uses time.Now
func NewStats(now Clock) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{now: now, start: now()}
}

// RecordFrame counts one displayed frame
func (s *Stats) RecordFrame() {
	s.frames++
}

// RecordInference counts one real detector call. Skipped or failed frames
// carry zero latency and are ignored.
func (s *Stats) RecordInference(latency time.Duration) {
	if latency <= 0 {
		return
	}
	s.inferCalls++
	s.cumulativeTime += latency
}

// FPS returns displayed frames per second since the start, 0 before any time has passed
func (s *Stats) FPS() float64 {
	elapsed := s.now().Sub(s.start)
	if elapsed <= 0 {
		return 0
	}
	return float64(s.frames) / elapsed.Seconds()
}

// AvgLatency returns the mean latency of real detector calls, 0 when there were none
func (s *Stats) AvgLatency() time.Duration {
	if s.inferCalls == 0 {
		return 0
	}
	return s.cumulativeTime / time.Duration(s.inferCalls)
}

// Snapshot returns the current counters and derived rates
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:     s.frames,
		InferCalls: s.inferCalls,
		Elapsed:    s.now().Sub(s.start),
		FPS:        s.FPS(),
		AvgLatency: s.AvgLatency(),
		StartedAt:  s.start,
	}
}

// Reset zeroes the counters and restarts the clock
func (s *Stats) Reset() {
	s.start = s.now()
	s.frames = 0
	s.inferCalls = 0
	s.cumulativeTime = 0
}
