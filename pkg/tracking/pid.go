package tracking

// Inertia filter weights. The filter smooths the raw controller output the
// same way the arm's stock pan/tilt loop does, so the servo response matches
// the tuning the gains were chosen for.
const (
	inertiaTime = 0.01
	sampleTime  = 0.1
)

// PID implements positional PID control with an output inertia filter.
// State persists across Step calls; the filtered output is what the caller
// maps into servo degrees.
type PID struct {
	Kp float64 // Proportional gain
	Ki float64 // Integral gain
	Kd float64 // Derivative gain

	errSum  float64
	lastErr float64
	out     float64
}

// NewPID creates a controller with the given gains.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Step feeds one measurement and returns the filtered controller output.
func (p *PID) Step(target, measured float64) float64 {
	err := target - measured
	raw := p.Kp*err + p.Ki*p.errSum + p.Kd*(err-p.lastErr)
	p.errSum += err
	p.lastErr = err
	p.out = (inertiaTime*p.out + sampleTime*raw) / (inertiaTime + sampleTime)
	return p.out
}

// Output returns the last filtered output without stepping the controller.
func (p *PID) Output() float64 {
	return p.out
}
