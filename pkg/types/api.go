// Package types holds request and response bodies shared by the daemon and
// its clients.
package types

import "time"

// CommandResponse answers the command routes. The shape is what the LAN
// web page expects.
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ScheduleRequest sets or clears (empty Cron) one action schedule.
type ScheduleRequest struct {
	Cron string `json:"cron"`
}

// ScheduleInfo describes one action schedule.
type ScheduleInfo struct {
	Action   string      `json:"action"`
	Cron     string      `json:"cron"`
	Enabled  bool        `json:"enabled"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
}

// VersionInfo identifies the running daemon build.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}
