package events

import "encoding/json"

// Event name constants
const (
	MotorAction      = "motor.action"
	MotorRange       = "motor.range"
	MotorPhase       = "motor.phase"
	ScheduleUpcoming = "schedule.upcoming"
	ScheduleError    = "schedule.error"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// Publisher accepts events. EventHub is the only production implementation.
type Publisher interface {
	Publish(name string, payload any)
}

// MotorActionEvent is the typed payload for motor.action.
type MotorActionEvent struct {
	Command  string `json:"command"`
	Result   string `json:"result"`
	Message  string `json:"message"`
	Position int64  `json:"position"`
	Ts       int64  `json:"ts"`
}

// MotorRangeEvent is the typed payload for motor.range. It is emitted when
// calibration completes and when a limit hit corrects the deployed endpoint.
type MotorRangeEvent struct {
	Deployed     int64  `json:"deployed"`
	SafeDeployed int64  `json:"safeDeployed"`
	SafetyBuffer int64  `json:"safetyBuffer"`
	Reason       string `json:"reason"`
	Ts           int64  `json:"ts"`
}

// MotorPhaseEvent is the typed payload for motor.phase.
type MotorPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// ScheduleEvent is the typed payload for schedule.upcoming and
// schedule.error.
type ScheduleEvent struct {
	Action  string `json:"action"`
	NextRun int64  `json:"nextRun,omitempty"`
	Error   string `json:"error,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.MotorActionEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Command, payload.Result)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
