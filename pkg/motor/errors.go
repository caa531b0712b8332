package motor

var (
	ErrNotCalibrated = &motorError{"not calibrated, run calibration first"}
	ErrInvalidRange  = &motorError{"calibrated range leaves no room to deploy"}
	ErrStopped       = &motorError{"control task is not running"}
)

type motorError struct{ msg string }

func (e *motorError) Error() string { return e.msg }
