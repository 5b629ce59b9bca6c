// Package telemetry streams joint angle snapshots to the backend. A
// background loop samples the six joints through the hardware arbiter and
// emits joint_state events, throttled so that an idle arm costs almost no
// bus or network traffic while still heartbeating once a second.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/arm"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

const (
	// forceInterval bounds the time between emissions; when it elapses the
	// next read blocks for the bus instead of yielding to writers.
	forceInterval    = time.Second
	forceLockTimeout = 200 * time.Millisecond

	// interReadPause spaces consecutive servo reads so a full sweep does
	// not hog the bus.
	interReadPause = 3 * time.Millisecond

	// minDelta suppresses emissions for sub-degree jitter.
	minDelta = 1

	// activeWindow is how long after a manual write the loop keeps
	// sampling at the base interval.
	activeWindow = 3 * time.Second

	idleFloor = 300 * time.Millisecond
	minSleep  = 80 * time.Millisecond
)

// Activity reports when the last manual write happened. The arm writer
// implements it.
type Activity interface {
	LastManual() time.Time
}

// Sampler owns the telemetry loop.
type Sampler struct {
	drv      arm.Driver
	arb      *arm.Arbiter
	sink     protocol.Sink
	activity Activity
	interval time.Duration
	log      *slog.Logger

	seq uint64
}

// New creates a sampler emitting to sink at the given base interval.
func New(drv arm.Driver, arb *arm.Arbiter, sink protocol.Sink, activity Activity, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Sampler{
		drv:      drv,
		arb:      arb,
		sink:     sink,
		activity: activity,
		interval: interval,
		log:      log.Component("telemetry"),
	}
}

// Run samples until ctx is cancelled. The first successful sample is always
// emitted; after that, emissions happen on a ≥1 degree change on any axis,
// on a nil/known transition, or as a one second heartbeat.
func (s *Sampler) Run(ctx context.Context) {
	s.log.Info("telemetry started", "interval", s.interval)
	var (
		last     []*int
		emitted  bool
		lastEmit time.Time
	)
	for {
		now := time.Now()
		force := !emitted || now.Sub(lastEmit) >= forceInterval
		if sample, ok := s.read(ctx, force); ok {
			if shouldEmit(sample, last, emitted, force) {
				s.sink.Publish(protocol.NewJointState(sample, s.seq))
				s.seq++
				last = sample
				lastEmit = now
				emitted = true
			}
		}
		if !sleepCtx(ctx, s.sleepFor(now)) {
			s.log.Info("telemetry stopped")
			return
		}
	}
}

// read sweeps all six joints. A forced read holds the bus for the whole
// sweep and reports failure when the bus cannot be acquired in time; an
// opportunistic read try-acquires per axis and yields nil for any axis it
// could not read without blocking.
func (s *Sampler) read(ctx context.Context, force bool) ([]*int, bool) {
	out := make([]*int, arm.NumJoints)
	if force {
		if !s.arb.AcquireTimeout(forceLockTimeout) {
			return nil, false
		}
		defer s.arb.Release()
		for i := 0; i < arm.NumJoints; i++ {
			if v, err := s.drv.ReadJoint(ctx, i+1); err == nil {
				angle := v
				out[i] = &angle
			}
			time.Sleep(interReadPause)
		}
		return out, true
	}
	for i := 0; i < arm.NumJoints; i++ {
		if s.arb.TryAcquire() {
			if v, err := s.drv.ReadJoint(ctx, i+1); err == nil {
				angle := v
				out[i] = &angle
			}
			s.arb.Release()
		}
		time.Sleep(interReadPause)
	}
	return out, true
}

// sleepFor picks the tick pacing: the base interval while manual activity
// is recent, doubled (with a floor) when idle.
func (s *Sampler) sleepFor(now time.Time) time.Duration {
	d := s.interval
	if now.Sub(s.activity.LastManual()) >= activeWindow {
		d = 2 * s.interval
		if d < idleFloor {
			d = idleFloor
		}
	}
	if d < minSleep {
		d = minSleep
	}
	return d
}

func shouldEmit(sample, last []*int, emitted, force bool) bool {
	if !emitted {
		return true
	}
	for i := range sample {
		a, b := sample[i], last[i]
		switch {
		case a == nil && b == nil:
		case a == nil || b == nil:
			return true
		case absInt(*a-*b) >= minDelta:
			return true
		}
	}
	return force
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
