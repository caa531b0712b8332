// Package gpio is the hardware adapter for the blind mechanism: a STEP/DIR
// stepper driver with an active-low enable input and two normally-open limit
// switches wired to pulled-up inputs.
package gpio

// Direction is the level driven on the DIR line.
type Direction int

const (
	// Retracting drives DIR low.
	Retracting Direction = iota
	// Deploying drives DIR high.
	Deploying
)

func (d Direction) String() string {
	switch d {
	case Deploying:
		return "deploying"
	case Retracting:
		return "retracting"
	default:
		return "unknown"
	}
}

// Pins is everything the motor controller needs from the hardware.
// Only the control task may call the output methods.
type Pins interface {
	// Enable powers the driver stage (EN low) or releases it.
	Enable(on bool) error
	SetDirection(dir Direction) error
	SetStep(high bool) error
	// RetractedLimit reports whether the retracted end-stop is asserted.
	RetractedLimit() (bool, error)
	// DeployedLimit reports whether the deployed end-stop is asserted.
	DeployedLimit() (bool, error)
	Close() error
}

// PinConfig holds line offsets on a gpiochip.
type PinConfig struct {
	Enable         int `json:"enable"`
	Step           int `json:"step"`
	Dir            int `json:"dir"`
	RetractedLimit int `json:"retractedLimit"`
	DeployedLimit  int `json:"deployedLimit"`
}
