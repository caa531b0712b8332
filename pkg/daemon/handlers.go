package daemon

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/motor"
	"github.com/charlie0129/blind/pkg/types"
	"github.com/charlie0129/blind/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ctrl.Snapshot())
}

func getHistory(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ctrl.History())
}

// commandHandler enqueues cmd for the control task and answers without
// waiting for it to run.
func commandHandler(cmd motor.Command, queued string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ctrl.Enqueue(cmd); err != nil {
			status, msg := http.StatusInternalServerError, err.Error()
			switch {
			case errors.Is(err, motor.ErrNotCalibrated):
				status, msg = http.StatusConflict, "Not calibrated. Run calibration first."
			case errors.Is(err, motor.ErrStopped):
				status, msg = http.StatusServiceUnavailable, "Motor controller is not running."
			}
			c.IndentedJSON(status, types.CommandResponse{
				Success: false,
				Message: msg,
			})
			_ = c.Error(err)
			c.Abort()
			return
		}

		logrus.WithField("command", cmd).Info("command queued")
		c.IndentedJSON(http.StatusAccepted, types.CommandResponse{
			Success: true,
			Message: queued,
		})
	}
}

func getSchedules(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, allScheduleInfo())
}

func setScheduleHandler(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScheduleRequest
		if err := c.BindJSON(&req); err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		info, err := setSchedule(action, strings.TrimSpace(req.Cron))
		if err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		c.IndentedJSON(http.StatusOK, info)
	}
}

func skipScheduleHandler(c *gin.Context) {
	action := c.Param("action")
	if _, ok := schedulers[action]; !ok {
		c.IndentedJSON(http.StatusNotFound, "unknown action "+action)
		_ = c.AbortWithError(http.StatusNotFound, errors.New("unknown action "+action))
		return
	}

	info, err := skipSchedule(action)
	if err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusOK, info)
}

// streamEvents relays hub events to the client as server-sent events until
// the client goes away.
func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	logrus.WithFields(logrus.Fields{
		"remote":      c.Request.RemoteAddr,
		"subscribers": sseHub.Subscribers(),
	}).Debug("event stream opened")
	defer logrus.WithField("remote", c.Request.RemoteAddr).Debug("event stream closed")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, types.VersionInfo{
		Version:   version.Version,
		GitCommit: version.GitCommit,
	})
}
