package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carebotlabs/go-carebot/pkg/arm"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

type readDriver struct {
	arb *arm.Arbiter

	mu        sync.Mutex
	angles    [arm.NumJoints]int
	failing   [arm.NumJoints]bool
	unguarded int32
}

func (d *readDriver) WriteJoint(ctx context.Context, id, angle int, move time.Duration) error {
	return nil
}

func (d *readDriver) WriteAllJoints(ctx context.Context, angles [arm.NumJoints]int, move time.Duration) error {
	return nil
}

func (d *readDriver) ReadJoint(ctx context.Context, id int) (int, error) {
	// A free arbiter here means the caller read without holding the bus.
	if d.arb.TryAcquire() {
		atomic.AddInt32(&d.unguarded, 1)
		d.arb.Release()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing[id-1] {
		return 0, errors.New("timeout")
	}
	return d.angles[id-1], nil
}

func (d *readDriver) Close() error { return nil }

func (d *readDriver) set(id, angle int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.angles[id-1] = angle
}

func (d *readDriver) fail(id int, failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[id-1] = failing
}

type stateSink struct {
	mu     sync.Mutex
	states []*protocol.JointState
	times  []time.Time
}

func (s *stateSink) Publish(v any) {
	st, ok := v.(*protocol.JointState)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	s.times = append(s.times, time.Now())
}

func (s *stateSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *stateSink) state(i int) *protocol.JointState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[i]
}

func (s *stateSink) at(i int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.times[i]
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) LastManual() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Now()
}

func startSampler(t *testing.T, drv *readDriver, arb *arm.Arbiter, sink *stateSink, act Activity) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s := New(drv, arb, sink, act, 10*time.Millisecond)
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("sampler did not stop after cancel")
		}
	})
	return cancel
}

func waitStates(t *testing.T, sink *stateSink, n int, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if sink.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("got %d joint_state events, want at least %d", sink.count(), n)
}

func TestSamplerFirstSampleEmitted(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb, angles: [arm.NumJoints]int{90, 150, 20, 20, 90, 30}}
	sink := &stateSink{}
	startSampler(t, drv, arb, sink, &manualClock{})

	waitStates(t, sink, 1, time.Second)
	st := sink.state(0)
	if st.Seq != 0 {
		t.Errorf("first seq = %d, want 0", st.Seq)
	}
	if len(st.Angles) != arm.NumJoints {
		t.Fatalf("angles length = %d", len(st.Angles))
	}
	for i, want := range []int{90, 150, 20, 20, 90, 30} {
		if st.Angles[i] == nil || *st.Angles[i] != want {
			t.Errorf("axis %d = %v, want %d", i+1, st.Angles[i], want)
		}
	}
	if n := atomic.LoadInt32(&drv.unguarded); n != 0 {
		t.Errorf("%d reads happened without the arbiter held", n)
	}
}

func TestSamplerSuppressesUnchanged(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb, angles: [arm.NumJoints]int{90, 90, 90, 90, 90, 90}}
	sink := &stateSink{}
	startSampler(t, drv, arb, sink, &manualClock{})

	waitStates(t, sink, 1, time.Second)
	// Well under the heartbeat interval: static angles must not re-emit.
	time.Sleep(400 * time.Millisecond)
	if got := sink.count(); got != 1 {
		t.Errorf("got %d emissions for static angles, want 1", got)
	}
}

func TestSamplerEmitsOnChange(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb, angles: [arm.NumJoints]int{90, 90, 90, 90, 90, 90}}
	sink := &stateSink{}
	startSampler(t, drv, arb, sink, &manualClock{})

	waitStates(t, sink, 1, time.Second)
	drv.set(3, 95)
	waitStates(t, sink, 2, time.Second)

	st := sink.state(1)
	if st.Seq != 1 {
		t.Errorf("seq = %d, want 1", st.Seq)
	}
	if st.Angles[2] == nil || *st.Angles[2] != 95 {
		t.Errorf("axis 3 = %v, want 95", st.Angles[2])
	}
}

func TestSamplerEmitsOnReadabilityChange(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb, angles: [arm.NumJoints]int{90, 90, 90, 90, 90, 90}}
	sink := &stateSink{}
	startSampler(t, drv, arb, sink, &manualClock{})

	waitStates(t, sink, 1, time.Second)
	drv.fail(5, true)
	waitStates(t, sink, 2, time.Second)

	if st := sink.state(1); st.Angles[4] != nil {
		t.Errorf("axis 5 = %v, want nil after read failures", st.Angles[4])
	}
}

func TestSamplerHeartbeat(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb, angles: [arm.NumJoints]int{10, 20, 30, 40, 50, 60}}
	sink := &stateSink{}
	startSampler(t, drv, arb, sink, &manualClock{})

	waitStates(t, sink, 2, 2*time.Second)
	gap := sink.at(1).Sub(sink.at(0))
	if gap < 900*time.Millisecond || gap > 1500*time.Millisecond {
		t.Errorf("heartbeat gap = %v, want about 1s", gap)
	}
}

func TestSamplerSkipsWhenBusHeldBeforeFirstSample(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb}
	sink := &stateSink{}
	if !arb.TryAcquire() {
		t.Fatal("arbiter should be free")
	}
	defer arb.Release()

	startSampler(t, drv, arb, sink, &manualClock{})

	// Until something has been emitted every read is forced, and a forced
	// read that cannot get the bus skips the tick entirely.
	time.Sleep(600 * time.Millisecond)
	if got := sink.count(); got != 0 {
		t.Errorf("got %d emissions while the bus was held, want 0", got)
	}
}

func TestSamplerSleepForIntervals(t *testing.T) {
	arb := arm.NewArbiter()
	drv := &readDriver{arb: arb}
	clock := &manualClock{}
	s := New(drv, arb, &stateSink{}, clock, 200*time.Millisecond)

	if d := s.sleepFor(time.Now()); d != 400*time.Millisecond {
		t.Errorf("idle sleep = %v, want 400ms", d)
	}
	clock.touch()
	if d := s.sleepFor(time.Now()); d != 200*time.Millisecond {
		t.Errorf("active sleep = %v, want 200ms", d)
	}

	// Doubling respects the idle floor, and tiny intervals respect the
	// minimum pacing.
	s = New(drv, arb, &stateSink{}, clock, 100*time.Millisecond)
	if d := s.sleepFor(time.Now().Add(10 * time.Second)); d != 300*time.Millisecond {
		t.Errorf("idle sleep = %v, want the 300ms floor", d)
	}
	s = New(drv, arb, &stateSink{}, &manualClock{}, 10*time.Millisecond)
	clockless := s.sleepFor(time.Now())
	if clockless != 300*time.Millisecond {
		t.Errorf("idle sleep = %v, want the 300ms floor", clockless)
	}
	clock2 := &manualClock{}
	clock2.touch()
	s = New(drv, arb, &stateSink{}, clock2, 10*time.Millisecond)
	if d := s.sleepFor(time.Now()); d != minSleep {
		t.Errorf("active sleep = %v, want the %v floor", d, minSleep)
	}
}
