package arm

import (
	"context"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/carebotlabs/go-carebot/internal/log"
)

// Discover probes candidate serial ports until one answers as a full arm
// bus. Returns the opened driver, or ErrNoArm when nothing responds.
func Discover(ctx context.Context, baud int) (*FeetechDriver, error) {
	ports := candidatePorts()
	if len(ports) == 0 {
		return nil, ErrNoArm
	}
	for _, p := range ports {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d, err := OpenFeetech(ctx, p, baud)
		if err != nil {
			log.Debug("not an arm port", "component", "arm", "port", p, "err", err)
			continue
		}
		return d, nil
	}
	return nil, ErrNoArm
}

func candidatePorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Warn("serial enumeration failed", "component", "arm", "err", err)
		return nil
	}
	var out []string
	for _, p := range ports {
		if isCandidatePort(p.Name) {
			out = append(out, p.Name)
		}
	}
	return out
}

func isCandidatePort(name string) bool {
	for _, prefix := range []string{
		"/dev/ttyUSB", "/dev/ttyACM",
		"/dev/tty.usbmodem", "/dev/tty.usbserial",
		"/dev/cu.usbmodem", "/dev/cu.usbserial",
		"COM",
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
