package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/events"
	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/motor"
)

const (
	// simulatedTravel is the end-stop distance of the simulated mechanism.
	simulatedTravel = 12000
	// controlStopTimeout bounds how long shutdown waits for a move in
	// progress. A full-range seek at default timing takes about 50s.
	controlStopTimeout = 90 * time.Second
	// httpShutdownTimeout bounds how long shutdown waits for requests.
	httpShutdownTimeout = 5 * time.Second
)

var (
	conf       config.Config
	ctrl       *motor.Controller
	sseHub     = events.NewEventHub()
	schedulers map[string]*Scheduler
)

// Options configures a daemon run.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
	// Simulate replaces the GPIO chip with an in-memory mechanism.
	Simulate bool
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", getStatus)
	router.GET("/history", getHistory)
	router.POST("/deploy", commandHandler(motor.CommandDeploy, "Deploying blinds"))
	router.POST("/retract", commandHandler(motor.CommandRetract, "Retracting blinds"))
	router.POST("/calibrate", commandHandler(motor.CommandCalibrate, "Calibration started"))
	router.POST("/test-pulse", commandHandler(motor.CommandTestPulse, "Test pulse started"))
	router.GET("/config", getConfig)
	router.GET("/events", streamEvents)
	router.GET("/schedule", getSchedules)
	router.PUT("/schedule/deploy", setScheduleHandler(actionDeploy))
	router.PUT("/schedule/retract", setScheduleHandler(actionRetract))
	router.POST("/schedule/:action/skip", skipScheduleHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/version", getVersion)

	return router
}

func openPins(c config.Config, simulate bool) (gpio.Pins, error) {
	if simulate {
		logrus.WithField("travel", simulatedTravel).Warn("using simulated mechanism, no hardware will move")
		return gpio.NewMock(gpio.MockConfig{Travel: simulatedTravel, Start: simulatedTravel / 3}), nil
	}
	return gpio.NewChip(c.GPIOChip(), c.Pins())
}

func motorOptions(c config.Config) motor.Options {
	opts := motor.DefaultOptions()
	opts.SafetyBuffer = c.SafetyBuffer()
	opts.PulseWidth = c.PulseWidth()
	opts.DirectionSettle = c.DirectionSettle()
	opts.SettleDelay = c.SettleDelay()
	opts.MaxSeekSteps = c.MaxSeekSteps()
	opts.CalibrateOnBoot = c.CalibrateOnBoot()
	return opts
}

// logSwitchDiagnostics reports the switch readings at startup. Both
// switches asserted at once usually means normally-closed switches or a
// wiring fault.
func logSwitchDiagnostics(pins gpio.Pins) {
	retracted, err1 := pins.RetractedLimit()
	deployed, err2 := pins.DeployedLimit()
	if err := errors.Join(err1, err2); err != nil {
		logrus.WithError(err).Error("failed to read limit switches")
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"retractedLimit": retracted,
		"deployedLimit":  deployed,
	})
	if retracted && deployed {
		log.Warn("both limit switches read as triggered; they may be normally-closed or wired incorrectly")
		return
	}
	log.Info("limit switch diagnostics")
}

func listen(network, addr string, allowNonRoot bool) (net.Listener, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	if network == "unix" && allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", addr)
		if err := os.Chmod(addr, 0777); err != nil {
			_ = l.Close()
			return nil, err
		}
	}
	return l, nil
}

// runControlTask boots c and executes its commands until ctx is done. A
// boot failure is returned; the daemon must not keep accepting commands
// that nothing would run.
func runControlTask(ctx context.Context, c *motor.Controller) error {
	if err := c.Boot(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to boot motor controller: %w", err)
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("control task exited unexpectedly: %w", err)
	}
	return nil
}

// stopControlTask cancels the control task and waits up to timeout for the
// command in progress. The pins are released only once the task is done;
// closing them under a running move would cut it short.
func stopControlTask(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, release func() error) {
	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		logrus.Errorf("control task still busy after %s, exiting without releasing gpio", timeout)
		return
	}

	logrus.Info("disabling motor driver")
	if err := release(); err != nil {
		logrus.Errorf("failed to release gpio: %v", err)
	}
}

func Run(opts Options) error {
	router := setupRoutes()

	fileConf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if err := fileConf.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	conf = fileConf
	logrus.WithFields(fileConf.LogrusFields()).Infof("config loaded")

	pins, err := openPins(conf, opts.Simulate)
	if err != nil {
		logrus.Fatalf("failed to open gpio: %v", err)
	}
	logSwitchDiagnostics(pins)

	ctrl, err = motor.New(pins, calibration.NewFile(conf.CalibrationPath()), motorOptions(conf))
	if err != nil {
		logrus.Fatalf("failed to create motor controller: %v", err)
	}
	ctrl.SetEventPublisher(sseHub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control task: the only goroutine that drives the motor.
	controlDone := make(chan struct{})
	controlErr := make(chan error, 1)
	go func() {
		defer close(controlDone)
		if err := runControlTask(ctx, ctrl); err != nil {
			controlErr <- err
		}
	}()

	schedulers = newSchedulers()
	startSchedulers()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := fileConf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := fileConf.Validate(); err != nil {
				logrus.Warnf("reloaded config is invalid, hardware settings keep their startup values: %v", err)
			}
			for action, s := range schedulers {
				if err := s.Schedule(cronFor(action)); err != nil {
					logrus.WithError(err).WithField("action", action).Error("failed to apply schedule")
				}
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listeners := []net.Listener{}
	l, err := listen("unix", opts.UnixSocketPath, conf.AllowNonRootAccess() || opts.AllowNonRoot)
	if err != nil {
		logrus.Fatal(err)
	}
	listeners = append(listeners, l)

	if addr := conf.ListenAddr(); addr != "" {
		l, err := listen("tcp", addr, false)
		if err != nil {
			logrus.Fatal(err)
		}
		listeners = append(listeners, l)
	}

	for _, l := range listeners {
		go func(l net.Listener) {
			logrus.Infof("http server listening on %s", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatal(err)
			}
		}(l)
	}

	var consoleWg sync.WaitGroup
	if port := conf.SerialPort(); port != "" {
		consoleWg.Add(1)
		go func() {
			defer consoleWg.Done()
			if err := serveSerialConsole(ctx, ctrl, port, conf.SerialBaudRate()); err != nil {
				logrus.Errorf("serial console stopped: %v", err)
			}
		}()
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM, or for the control task to die:
	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case runErr = <-controlErr:
		logrus.Errorf("%v: shutting down.", runErr)
	}

	logrus.WithField("subscribers", sseHub.Subscribers()).Info("closing event streams")
	sseHub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping schedulers")
	stopSchedulers()

	logrus.Info("waiting for control task to finish the current command")
	cancel()
	consoleWg.Wait()
	stopControlTask(cancel, controlDone, controlStopTimeout, ctrl.Close)

	logrus.Info("exiting")
	return runErr
}
