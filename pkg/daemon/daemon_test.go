package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/motor"
	"github.com/charlie0129/blind/pkg/types"
)

// setupTestDaemon wires the package globals to a simulated mechanism and
// starts the control task.
func setupTestDaemon(t *testing.T, travel int64) (http.Handler, *gpio.Mock) {
	t.Helper()

	dir := t.TempDir()
	conf = config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(dir, "blind.json"))

	mock := gpio.NewMock(gpio.MockConfig{Travel: travel, Start: travel / 2})
	require.NoError(t, mock.Enable(true))

	opts := motorOptions(conf)
	opts.PulseWidth = 0
	opts.DirectionSettle = 0
	opts.SettleDelay = 0
	opts.PollInterval = 5 * time.Millisecond

	var err error
	ctrl, err = motor.New(mock, calibration.NewFile(filepath.Join(dir, "calibration.json")), opts)
	require.NoError(t, err)
	ctrl.SetEventPublisher(sseHub)

	schedulers = newSchedulers()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		stopSchedulers()
	})

	return setupRoutes(), mock
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getTestStatus(t *testing.T, h http.Handler) calibration.Status {
	t.Helper()
	w := doRequest(t, h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st calibration.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestCommandRoutes(t *testing.T) {
	h, mock := setupTestDaemon(t, 4000)

	w := doRequest(t, h, http.MethodPost, "/deploy", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	var resp types.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Not calibrated. Run calibration first.", resp.Message)

	w = doRequest(t, h, http.MethodPost, "/calibrate", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	require.Eventually(t, func() bool {
		st := getTestStatus(t, h)
		return st.Calibrated && !st.Busy && st.LastAction == "Calibration complete"
	}, 10*time.Second, 10*time.Millisecond)

	st := getTestStatus(t, h)
	assert.Equal(t, int64(4000), st.Deployed)
	assert.Equal(t, int64(3800), st.SafeDeployed)
	assert.Equal(t, int64(0), st.Position)
	assert.True(t, st.RetractedLimit)

	w = doRequest(t, h, http.MethodPost, "/deploy", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return getTestStatus(t, h).Position == 3800 && mock.Position() == 3800
	}, 10*time.Second, 10*time.Millisecond)

	w = doRequest(t, h, http.MethodPost, "/retract", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return getTestStatus(t, h).LastAction == "Retracted to 0"
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), mock.Position())

	w = doRequest(t, h, http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var history []motor.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.NotEmpty(t, history)
}

func TestScheduleRoutes(t *testing.T) {
	h, _ := setupTestDaemon(t, 4000)

	w := doRequest(t, h, http.MethodPut, "/schedule/deploy", types.ScheduleRequest{Cron: "0 7 * * *"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info types.ScheduleInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.True(t, info.Enabled)
	assert.Equal(t, "deploy", info.Action)
	assert.Len(t, info.NextRuns, 3)
	assert.Equal(t, "0 7 * * *", conf.DeployCron(), "schedule is persisted to config")

	w = doRequest(t, h, http.MethodPut, "/schedule/retract", types.ScheduleRequest{Cron: "not cron"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodGet, "/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var infos []types.ScheduleInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "deploy", infos[0].Action)
	assert.False(t, infos[1].Enabled)

	w = doRequest(t, h, http.MethodPost, "/schedule/deploy/skip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var skipped types.ScheduleInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &skipped))
	assert.True(t, skipped.NextRuns[0].After(info.NextRuns[0]))

	w = doRequest(t, h, http.MethodPost, "/schedule/retract/skip", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, h, http.MethodPost, "/schedule/open/skip", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, h, http.MethodPut, "/schedule/deploy", types.ScheduleRequest{Cron: ""})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.False(t, info.Enabled)
}

func TestInfoRoutes(t *testing.T) {
	h, _ := setupTestDaemon(t, 4000)

	w := doRequest(t, h, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var v types.VersionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.NotEmpty(t, v.Version)

	w = doRequest(t, h, http.MethodGet, "/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var raw config.RawFileConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.NotNil(t, raw.SafetyBuffer)
	assert.Equal(t, int64(200), *raw.SafetyBuffer)

	w = doRequest(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "blind_motor_position_steps"))
}

func TestStatusJSONFields(t *testing.T) {
	h, _ := setupTestDaemon(t, 4000)

	w := doRequest(t, h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	for _, key := range []string{"calibrated", "currentPosition", "deployedPosition", "retractedLimit", "deployedLimit", "lastAction"} {
		assert.Contains(t, m, key)
	}
}
