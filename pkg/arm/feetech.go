package arm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/carebotlabs/go-carebot/internal/log"
)

// STS3215 geometry: 4096 ticks per revolution, mechanically centered at
// 2048. Carebot joint degree 90 maps to the center tick.
const (
	ticksPerRev = 4096
	tickCenter  = 2048
)

func degToTicks(deg int) int {
	return tickCenter + int(math.Round(float64(deg-90)*ticksPerRev/360.0))
}

func ticksToDeg(ticks int) int {
	return 90 + int(math.Round(float64(ticks-tickCenter)*360.0/ticksPerRev))
}

// FeetechDriver drives the arm over a Feetech STS serial bus.
type FeetechDriver struct {
	bus    *feetech.Bus
	servos map[int]*feetech.Servo
	port   string
}

var _ Driver = (*FeetechDriver)(nil)

// OpenFeetech opens the bus on port, scans for the six arm servos, and
// enables torque on each.
func OpenFeetech(ctx context.Context, port string, baud int) (*FeetechDriver, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", port, err)
	}

	found, err := bus.Scan(ctx, 1, NumJoints)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan %s: %w", port, err)
	}
	servos := make(map[int]*feetech.Servo, NumJoints)
	for _, s := range found {
		servos[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}
	for id := 1; id <= NumJoints; id++ {
		if servos[id] == nil {
			bus.Close()
			return nil, fmt.Errorf("%s: servo %d missing (found %d of %d)", port, id, len(found), NumJoints)
		}
	}

	for id := 1; id <= NumJoints; id++ {
		if err := servos[id].Enable(ctx); err != nil {
			bus.Close()
			return nil, fmt.Errorf("enable servo %d: %w", id, err)
		}
	}

	log.Info("arm bus ready", "component", "arm", "port", port, "servos", len(found))
	return &FeetechDriver{bus: bus, servos: servos, port: port}, nil
}

// Port returns the serial device the driver is attached to.
func (d *FeetechDriver) Port() string {
	return d.port
}

func (d *FeetechDriver) WriteJoint(ctx context.Context, id, angle int, move time.Duration) error {
	if !ValidID(id) {
		return ErrInvalidServoID
	}
	ticks := degToTicks(ClampAngle(angle))
	if err := d.servos[id].SetPositionWithTime(ctx, ticks, moveMillis(move)); err != nil {
		return fmt.Errorf("servo %d: %w", id, err)
	}
	return nil
}

func (d *FeetechDriver) WriteAllJoints(ctx context.Context, angles [NumJoints]int, move time.Duration) error {
	ms := moveMillis(move)
	for i, a := range angles {
		id := i + 1
		if err := d.servos[id].SetPositionWithTime(ctx, degToTicks(ClampAngle(a)), ms); err != nil {
			return fmt.Errorf("servo %d: %w", id, err)
		}
	}
	return nil
}

func (d *FeetechDriver) ReadJoint(ctx context.Context, id int) (int, error) {
	if !ValidID(id) {
		return 0, ErrInvalidServoID
	}
	ticks, err := d.servos[id].Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("servo %d: %w", id, err)
	}
	return ticksToDeg(ticks), nil
}

func (d *FeetechDriver) Close() error {
	return d.bus.Close()
}

func moveMillis(move time.Duration) int {
	return int(ClampMove(move) / time.Millisecond)
}
