// Package calibration defines the types used by the blind travel-range
// calibration. It contains:
//
//   - Phase: the discrete steps of the calibration state machine
//   - Record: the persisted travel range and its file-backed Store
//   - Status: a synthesized view model returned by HTTP APIs and used by the CLI
//
// These types are shared across motor, daemon and client code to avoid
// duplicate definitions and keep JSON contracts consistent.
package calibration
