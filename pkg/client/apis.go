package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/motor"
	"github.com/charlie0129/blind/pkg/types"
)

// command posts to a command route and returns the daemon's message.
func (c *Client) command(path string) (string, error) {
	ret, err := c.Post(path, "")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			var resp types.CommandResponse
			if jsonErr := json.Unmarshal([]byte(se.Body), &resp); jsonErr == nil && resp.Message != "" {
				if se.Code == http.StatusConflict {
					return "", fmt.Errorf("%w: %s", ErrNotCalibrated, resp.Message)
				}
				return "", errors.New(resp.Message)
			}
		}
		return "", err
	}

	var resp types.CommandResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal command response")
	}
	return resp.Message, nil
}

func (c *Client) Deploy() (string, error) {
	return c.command("/deploy")
}

func (c *Client) Retract() (string, error) {
	return c.command("/retract")
}

func (c *Client) Calibrate() (string, error) {
	return c.command("/calibrate")
}

func (c *Client) TestPulse() (string, error) {
	return c.command("/test-pulse")
}

func (c *Client) GetStatus() (*calibration.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st calibration.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

func (c *Client) GetHistory() ([]motor.Action, error) {
	ret, err := c.Get("/history")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get history")
	}

	var actions []motor.Action
	if err := json.Unmarshal([]byte(ret), &actions); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal history")
	}
	return actions, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (*types.VersionInfo, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get version")
	}

	var v types.VersionInfo
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return &v, nil
}

// ===== Schedule APIs =====

func (c *Client) GetSchedules() ([]types.ScheduleInfo, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedules")
	}

	var infos []types.ScheduleInfo
	if err := json.Unmarshal([]byte(ret), &infos); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedules")
	}
	return infos, nil
}

// SetSchedule sets the cron expression for action. An empty expression
// disables the schedule.
func (c *Client) SetSchedule(action, cronExpr string) (*types.ScheduleInfo, error) {
	payload, err := json.Marshal(types.ScheduleRequest{Cron: cronExpr})
	if err != nil {
		return nil, err
	}

	ret, err := c.Put("/schedule/"+action, string(payload))
	if err != nil {
		return nil, scheduleError(err, "failed to set %s schedule", action)
	}
	return decodeScheduleInfo(ret)
}

func (c *Client) SkipSchedule(action string) (*types.ScheduleInfo, error) {
	ret, err := c.Post("/schedule/"+action+"/skip", "")
	if err != nil {
		return nil, scheduleError(err, "failed to skip %s schedule", action)
	}
	return decodeScheduleInfo(ret)
}

// scheduleError surfaces the daemon's message, which the schedule routes
// send as a JSON string.
func scheduleError(err error, format string, args ...any) error {
	var se *StatusError
	if errors.As(err, &se) {
		if msg, uerr := strconv.Unquote(se.Body); uerr == nil {
			return pkgerrors.Wrapf(errors.New(msg), format, args...)
		}
	}
	return pkgerrors.Wrapf(err, format, args...)
}

func decodeScheduleInfo(ret string) (*types.ScheduleInfo, error) {
	var info types.ScheduleInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &info, nil
}
