package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/motor"
)

// commander is what the console needs from the motor controller.
type commander interface {
	Enqueue(motor.Command) error
	Snapshot() calibration.Status
}

// consoleCommand is a single-letter command. Letters are case-insensitive.
type consoleCommand struct {
	Flag        byte
	Run         func(commander, io.Writer) error
	Description string
}

func enqueueCommand(cmd motor.Command, queued string) func(commander, io.Writer) error {
	return func(c commander, w io.Writer) error {
		if err := c.Enqueue(cmd); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, queued)
		return err
	}
}

var consoleCommands = []*consoleCommand{
	{
		Flag:        'd',
		Run:         enqueueCommand(motor.CommandDeploy, "Deploying blinds..."),
		Description: "Deploy to the safe deployed position",
	},
	{
		Flag:        'r',
		Run:         enqueueCommand(motor.CommandRetract, "Retracting blinds..."),
		Description: "Retract to the home position",
	},
	{
		Flag:        'c',
		Run:         enqueueCommand(motor.CommandCalibrate, "Starting calibration..."),
		Description: "Run a full calibration",
	},
	{
		Flag:        't',
		Run:         enqueueCommand(motor.CommandTestPulse, "Test: moving forward without limit checks..."),
		Description: "Send raw test pulses forward",
	},
	{
		Flag: 's',
		Run: func(c commander, w io.Writer) error {
			return writeStatusDump(w, c.Snapshot())
		},
		Description: "Print current status",
	},
}

func lookupConsoleCommand(b byte) *consoleCommand {
	b = byte(unicode.ToLower(rune(b)))
	for _, cmd := range consoleCommands {
		if cmd.Flag == b {
			return cmd
		}
	}
	return nil
}

func writeConsoleHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, cmd := range consoleCommands {
		_, _ = fmt.Fprintf(w, "  %c  %s\n", cmd.Flag, cmd.Description)
	}
}

func triggered(b bool) string {
	if b {
		return "TRIGGERED"
	}
	return "NOT TRIGGERED"
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func writeStatusDump(w io.Writer, st calibration.Status) error {
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintln(bw, "\n=== Current Status ===")
	_, _ = fmt.Fprintf(bw, "Retracted limit: %s\n", triggered(st.RetractedLimit))
	_, _ = fmt.Fprintf(bw, "Deployed limit: %s\n", triggered(st.DeployedLimit))
	_, _ = fmt.Fprintf(bw, "Current position: %d\n", st.Position)
	_, _ = fmt.Fprintf(bw, "Calibrated: %s\n", yesNo(st.Calibrated))
	if st.Calibrated {
		_, _ = fmt.Fprintf(bw, "Deployed position: %d\n", st.Deployed)
		_, _ = fmt.Fprintf(bw, "Safe deployed position: %d\n", st.SafeDeployed)
	}
	if st.LastAction != "" {
		_, _ = fmt.Fprintf(bw, "Last action: %s\n", st.LastAction)
	}
	_, _ = fmt.Fprintln(bw, "====================")
	return bw.Flush()
}

// runConsole reads single-letter commands from r and answers on w until r
// is exhausted or ctx is done. Whitespace is ignored.
func runConsole(ctx context.Context, c commander, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	writeConsoleHelp(w)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if unicode.IsSpace(rune(b)) {
			continue
		}

		cmd := lookupConsoleCommand(b)
		if cmd == nil {
			_, _ = fmt.Fprintf(w, "Unknown command %q\n", b)
			writeConsoleHelp(w)
			continue
		}

		logrus.WithField("command", string(cmd.Flag)).Debug("console command")
		if err := cmd.Run(c, w); err != nil {
			if errors.Is(err, motor.ErrNotCalibrated) {
				_, _ = fmt.Fprintln(w, "Error: Not calibrated. Run calibration first.")
				continue
			}
			_, _ = fmt.Fprintf(w, "Error: %v\n", err)
		}
	}
}

// serveSerialConsole opens the serial port and runs the console on it. The
// port is closed when ctx is done.
func serveSerialConsole(ctx context.Context, c commander, portName string, baudRate int) error {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	log := logrus.WithFields(logrus.Fields{
		"port":     portName,
		"baudRate": baudRate,
	})
	log.Info("serial console started")

	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()

	err = runConsole(ctx, c, port, port)
	if ctx.Err() != nil {
		log.Info("serial console stopped")
		return nil
	}
	return err
}
