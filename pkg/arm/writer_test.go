package arm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type jointWrite struct {
	id    int
	angle int
	move  time.Duration
}

// fakeDriver records device operations. When arb is set, it verifies the
// arbiter is held for the duration of every operation.
type fakeDriver struct {
	arb *Arbiter

	mu        sync.Mutex
	writes    []jointWrite
	batches   [][NumJoints]int
	readAngle int
	readErr   error
	writeErr  error
	unguarded int
}

func (f *fakeDriver) checkHeld() {
	if f.arb != nil && f.arb.TryAcquire() {
		f.arb.Release()
		f.unguarded++
	}
}

func (f *fakeDriver) WriteJoint(_ context.Context, id, angle int, move time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkHeld()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, jointWrite{id, angle, move})
	return nil
}

func (f *fakeDriver) WriteAllJoints(_ context.Context, angles [NumJoints]int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkHeld()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, angles)
	return nil
}

func (f *fakeDriver) ReadJoint(_ context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkHeld()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.readAngle, nil
}

func (f *fakeDriver) Close() error { return nil }

func newTestWriter(drv *fakeDriver) (*Writer, *Arbiter) {
	arb := NewArbiter()
	drv.arb = arb
	return NewWriter(drv, arb), arb
}

func TestSetJointInvalidID(t *testing.T) {
	for _, id := range []int{0, 7, -1, 100} {
		drv := &fakeDriver{}
		w, _ := newTestWriter(drv)
		err := w.SetJoint(context.Background(), id, 90, 0)
		if !errors.Is(err, ErrInvalidServoID) {
			t.Errorf("id=%d: err = %v, want ErrInvalidServoID", id, err)
		}
		if len(drv.writes) != 0 {
			t.Errorf("id=%d: write attempted on invalid id", id)
		}
	}
}

func TestSetJointClampsAngle(t *testing.T) {
	tests := []struct {
		angle, want int
	}{
		{250, 180},
		{-5, 0},
		{90, 90},
		{180, 180},
	}
	for _, tt := range tests {
		drv := &fakeDriver{}
		w, _ := newTestWriter(drv)
		if err := w.SetJoint(context.Background(), 3, tt.angle, 0); err != nil {
			t.Fatalf("SetJoint(%d): %v", tt.angle, err)
		}
		if got := drv.writes[0].angle; got != tt.want {
			t.Errorf("angle %d wrote %d, want %d", tt.angle, got, tt.want)
		}
	}
}

func TestSetJointsValidation(t *testing.T) {
	drv := &fakeDriver{}
	w, _ := newTestWriter(drv)

	err := w.SetJoints(context.Background(), []int{90, 90, 90}, 0)
	if !errors.Is(err, ErrInvalidAngles) {
		t.Errorf("short vector: err = %v, want ErrInvalidAngles", err)
	}
	if len(drv.batches) != 0 {
		t.Error("write attempted with short vector")
	}

	if err := w.SetJoints(context.Background(), []int{200, -10, 90, 90, 90, 90}, 0); err != nil {
		t.Fatalf("SetJoints: %v", err)
	}
	want := [NumJoints]int{180, 0, 90, 90, 90, 90}
	if drv.batches[0] != want {
		t.Errorf("batch = %v, want %v", drv.batches[0], want)
	}
}

func TestNudgeJoint(t *testing.T) {
	drv := &fakeDriver{readAngle: 170}
	w, _ := newTestWriter(drv)

	if err := w.NudgeJoint(context.Background(), 2, 30, 0); err != nil {
		t.Fatalf("NudgeJoint: %v", err)
	}
	if got := drv.writes[0]; got.id != 2 || got.angle != 180 {
		t.Errorf("nudge wrote %+v, want id=2 angle=180", got)
	}

	drv.readAngle = 10
	if err := w.NudgeJoint(context.Background(), 2, -30, 0); err != nil {
		t.Fatalf("NudgeJoint: %v", err)
	}
	if got := drv.writes[1].angle; got != 0 {
		t.Errorf("downward nudge wrote %d, want 0", got)
	}
}

func TestNudgeJointReadFailure(t *testing.T) {
	drv := &fakeDriver{readErr: errors.New("timeout")}
	w, _ := newTestWriter(drv)

	err := w.NudgeJoint(context.Background(), 1, 10, 0)
	if !errors.Is(err, ErrReadFailed) {
		t.Errorf("err = %v, want ErrReadFailed", err)
	}
	if len(drv.writes) != 0 {
		t.Error("write attempted after failed read")
	}
}

func TestWriterBusy(t *testing.T) {
	drv := &fakeDriver{}
	w, arb := newTestWriter(drv)
	arb.TryAcquire()
	defer arb.Release()

	err := w.SetJoint(context.Background(), 1, 90, 0)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestWriterHoldsArbiter(t *testing.T) {
	drv := &fakeDriver{readAngle: 90}
	w, _ := newTestWriter(drv)

	ctx := context.Background()
	_ = w.SetJoint(ctx, 1, 90, 0)
	_ = w.SetJoints(ctx, []int{90, 90, 90, 90, 90, 90}, 0)
	_ = w.NudgeJoint(ctx, 1, 5, 0)

	if drv.unguarded != 0 {
		t.Errorf("%d device operations ran without the arbiter held", drv.unguarded)
	}
}

func TestLastManualStamped(t *testing.T) {
	drv := &fakeDriver{}
	w, _ := newTestWriter(drv)

	if !w.LastManual().IsZero() {
		t.Error("LastManual set before any write")
	}
	if err := w.SetJoint(context.Background(), 1, 90, 0); err != nil {
		t.Fatal(err)
	}
	if w.LastManual().IsZero() {
		t.Error("LastManual not stamped after successful write")
	}

	before := w.LastManual()
	drv.writeErr = errors.New("bus fault")
	_ = w.SetJoint(context.Background(), 1, 90, 0)
	if w.LastManual() != before {
		t.Error("LastManual stamped on failed write")
	}
}

func TestClampHelpers(t *testing.T) {
	if got := ClampAngle(181); got != 180 {
		t.Errorf("ClampAngle(181) = %d", got)
	}
	if got := ClampAngle(-1); got != 0 {
		t.Errorf("ClampAngle(-1) = %d", got)
	}
	if got := ClampMove(-time.Second); got != 0 {
		t.Errorf("ClampMove(-1s) = %v", got)
	}
	if got := ClampMove(time.Second); got != time.Second {
		t.Errorf("ClampMove(1s) = %v", got)
	}
}

func TestTickConversion(t *testing.T) {
	tests := []struct {
		deg, ticks int
	}{
		{90, 2048},
		{0, 1024},
		{180, 3072},
	}
	for _, tt := range tests {
		if got := degToTicks(tt.deg); got != tt.ticks {
			t.Errorf("degToTicks(%d) = %d, want %d", tt.deg, got, tt.ticks)
		}
		if got := ticksToDeg(tt.ticks); got != tt.deg {
			t.Errorf("ticksToDeg(%d) = %d, want %d", tt.ticks, got, tt.deg)
		}
	}
}
