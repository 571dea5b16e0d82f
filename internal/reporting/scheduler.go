package reporting

// #region imports
import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
)

// #endregion

// #region intervals

const (
	// HourInterval is the retry/first-upload pacing interval.
	HourInterval = time.Hour
	// DayInterval is the steady-state upload interval.
	DayInterval = 24 * time.Hour
)

// #endregion intervals

// #region transport

// UploadAck is the collector's acknowledgement: everything stamped at or
// below AcceptedThrough is safe to prune.
type UploadAck struct {
	AcceptedThrough string
}

// ErrRejected marks a client-side (400-class) rejection of the current
// report. The scheduler advances past the rejected snapshot instead of
// retrying it verbatim.
var ErrRejected = errors.New("report rejected by collector")

// Transport is the network boundary for the reporting pipeline.
type Transport interface {
	UploadReport(ctx context.Context, adUUID string, events []state.Event) (UploadAck, error)
	DownloadSurveys(ctx context.Context, locale string) ([]state.Survey, error)
}

// #endregion transport

// #region source

// Source hands the scheduler a queue snapshot and applies the acknowledged
// watermark. The host's dispatch ordering keeps these calls serialized with
// other profile mutations.
type Source interface {
	// Snapshot returns the report path discriminator and the full queue,
	// with a correlation id already assigned to the newest record.
	Snapshot() (adUUID string, events []state.Event)
	// PruneThrough drops everything stamped at or below the watermark.
	PruneThrough(watermark string)
}

// StateSource is the plain Source over a profile aggregate.
type StateSource struct {
	State *state.BehavioralState
}

func (s *StateSource) Snapshot() (string, []state.Event) {
	EnsureCorrelation(s.State)
	return s.State.AdUUID, append([]state.Event(nil), s.State.Events...)
}

func (s *StateSource) PruneThrough(watermark string) {
	s.State.PruneEventsThrough(watermark)
}

// #endregion source

// #region scheduler

// Scheduler drives periodic uploads with a single outstanding one-shot
// timer. A new timer is armed only after the previous attempt's callback
// has run, so at most one upload is logically in flight per profile.
type Scheduler struct {
	transport Transport
	source    Source

	hour time.Duration
	day  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// NewScheduler creates a scheduler on the stock hour/day intervals.
func NewScheduler(transport Transport, source Source) *Scheduler {
	return &Scheduler{
		transport: transport,
		source:    source,
		hour:      HourInterval,
		day:       DayInterval,
		now:       time.Now,
	}
}

// WithIntervals overrides the pacing intervals. Test hook.
func (s *Scheduler) WithIntervals(hour, day time.Duration) *Scheduler {
	s.hour, s.day = hour, day
	return s
}

// WithClock overrides the scheduler's clock. Test hook.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// #endregion scheduler

// #region arm

// Start arms the timer if none is active. The first delay is the time
// already elapsed since the newest queued event, clamped to the hour
// interval (a fresh queue uploads sooner, an old backlog waits at most the
// full hour).
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.armLocked(s.initialDelay())
}

// Stop cancels any pending timer. Disabling ads calls this immediately.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Active reports whether a timer is currently armed.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) armLocked(delay time.Duration) {
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Scheduler) fire() {
	next := s.runOnce(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		// Stopped while the attempt ran; do not rearm.
		return
	}
	s.armLocked(next)
}

// initialDelay computes min(hour, now - newest queued stamp), clamped to
// [0, hour]; a full hour when the queue is empty.
func (s *Scheduler) initialDelay() time.Duration {
	_, events := s.source.Snapshot()
	if len(events) == 0 {
		return s.hour
	}
	last, err := time.Parse(time.RFC3339, events[len(events)-1].Stamp)
	if err != nil {
		return s.hour
	}
	elapsed := s.now().Sub(last)
	if elapsed < 0 {
		return s.hour
	}
	if elapsed > s.hour {
		return s.hour
	}
	return elapsed
}

// #endregion arm

// #region run-once

// runOnce performs one upload attempt and returns the next delay.
func (s *Scheduler) runOnce(ctx context.Context) time.Duration {
	adUUID, events := s.source.Snapshot()
	if len(events) == 0 {
		// Nothing to report; skip the network round-trip entirely.
		return s.day
	}

	ack, err := s.transport.UploadReport(ctx, adUUID, events)
	if err == nil {
		s.source.PruneThrough(ack.AcceptedThrough)
		return s.day
	}

	log.Printf("[REPORT] upload failed: %v", err)
	if errors.Is(err, ErrRejected) {
		// Permanent rejection of this snapshot: advance past it rather
		// than resending the exact same report forever.
		s.source.PruneThrough(events[len(events)-1].Stamp)
	}
	return s.hour
}

// #endregion run-once
