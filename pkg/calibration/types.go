package calibration

import "time"

// Phase defines phases of the calibration state machine.
type Phase string

const (
	PhaseUncalibrated     Phase = "Uncalibrated"
	PhaseSeekingRetracted Phase = "SeekingRetracted"
	PhaseSeekingDeployed  Phase = "SeekingDeployed"
	PhaseCalibrated       Phase = "Calibrated"
)

// Magic marks a valid persisted record.
const Magic uint16 = 0xBD01

// MaxDeployed is the largest deployed endpoint accepted from storage.
const MaxDeployed int64 = 100000

// Record is the persisted travel range. The retracted endpoint is always 0.
type Record struct {
	Magic        uint16 `json:"magic"`
	Deployed     int64  `json:"deployed"`
	SafetyBuffer int64  `json:"safetyBuffer"`
}

// Valid reports whether r carries the marker and a plausible range.
func (r Record) Valid() bool {
	return r.Magic == Magic && r.Deployed > 0 && r.Deployed <= MaxDeployed
}

// Status is a synthesized view model exposed via HTTP and the CLI. It is
// built from controller state plus live switch readings. PositionStale is
// set when the position lock could not be taken in time and Position is the
// last value read successfully.
type Status struct {
	Calibrated     bool      `json:"calibrated"`
	Phase          Phase     `json:"phase"`
	Position       int64     `json:"currentPosition"`
	PositionStale  bool      `json:"positionStale,omitempty"`
	Deployed       int64     `json:"deployedPosition"`
	SafeDeployed   int64     `json:"safeDeployedPosition"`
	SafetyBuffer   int64     `json:"safetyBuffer"`
	RetractedLimit bool      `json:"retractedLimit"`
	DeployedLimit  bool      `json:"deployedLimit"`
	Busy           bool      `json:"busy"`
	LastAction     string    `json:"lastAction"`
	LastActionAt   time.Time `json:"lastActionAt"`
}
