// Package stats tracks ingest pipeline counters.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks frame and flight processing statistics. Counters use atomics
// so the ingest loop never contends with the periodic logger.
type Stats struct {
	FramesReceived  uint64
	MalformedFrames uint64
	DecodedPackets  uint64
	StoredPackets   uint64
	StartedFlights  uint64
	EndedFlights    uint64

	startTime time.Time

	mu            sync.RWMutex
	lastFrameTime time.Time
}

// New creates a new Stats instance.
func New() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// IncrementFramesReceived increments the received frames counter.
func (s *Stats) IncrementFramesReceived() {
	atomic.AddUint64(&s.FramesReceived, 1)
}

// IncrementMalformedFrames increments the malformed frames counter.
func (s *Stats) IncrementMalformedFrames() {
	atomic.AddUint64(&s.MalformedFrames, 1)
}

// IncrementDecodedPackets increments the decoded packets counter.
func (s *Stats) IncrementDecodedPackets() {
	atomic.AddUint64(&s.DecodedPackets, 1)
}

// IncrementStoredPackets increments the stored packets counter.
func (s *Stats) IncrementStoredPackets() {
	atomic.AddUint64(&s.StoredPackets, 1)
}

// IncrementStartedFlights increments the started flights counter.
func (s *Stats) IncrementStartedFlights() {
	atomic.AddUint64(&s.StartedFlights, 1)
}

// IncrementEndedFlights increments the ended flights counter.
func (s *Stats) IncrementEndedFlights() {
	atomic.AddUint64(&s.EndedFlights, 1)
}

// UpdateLastFrameTime records the arrival time of the latest frame.
func (s *Stats) UpdateLastFrameTime() {
	s.mu.Lock()
	s.lastFrameTime = time.Now()
	s.mu.Unlock()
}

// LastFrameTime returns when the latest frame arrived, zero if none has.
func (s *Stats) LastFrameTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrameTime
}

// String renders the counters for the periodic statistics log.
func (s *Stats) String() string {
	s.mu.RLock()
	last := s.lastFrameTime
	s.mu.RUnlock()

	lastStr := "never"
	if !last.IsZero() {
		lastStr = last.Format(time.RFC3339)
	}

	return fmt.Sprintf(
		"Frames Received: %d\n"+
			"Malformed Frames: %d\n"+
			"Decoded Packets: %d\n"+
			"Stored Packets: %d\n"+
			"Started Flights: %d\n"+
			"Ended Flights: %d\n"+
			"Last Frame Time: %s\n"+
			"Uptime: %s",
		atomic.LoadUint64(&s.FramesReceived),
		atomic.LoadUint64(&s.MalformedFrames),
		atomic.LoadUint64(&s.DecodedPackets),
		atomic.LoadUint64(&s.StoredPackets),
		atomic.LoadUint64(&s.StartedFlights),
		atomic.LoadUint64(&s.EndedFlights),
		lastStr,
		time.Since(s.startTime).Round(time.Second),
	)
}
