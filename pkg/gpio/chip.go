package gpio

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "blind"

var _ Pins = &Chip{}

// Chip drives the mechanism through the Linux GPIO character device.
type Chip struct {
	name string
	cfg  PinConfig

	enable    *gpiocdev.Line
	step      *gpiocdev.Line
	dir       *gpiocdev.Line
	retracted *gpiocdev.Line
	deployed  *gpiocdev.Line
}

// NewChip requests all lines on the given chip, e.g. "gpiochip0".
// The driver starts disabled (EN high) with STEP and DIR low.
func NewChip(name string, cfg PinConfig) (*Chip, error) {
	c := &Chip{name: name, cfg: cfg}

	var err error
	if c.enable, err = c.output(cfg.Enable, 1); err != nil {
		return nil, err
	}
	if c.step, err = c.output(cfg.Step, 0); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.dir, err = c.output(cfg.Dir, 0); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.retracted, err = c.input(cfg.RetractedLimit); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.deployed, err = c.input(cfg.DeployedLimit); err != nil {
		_ = c.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"chip":           name,
		"enable":         cfg.Enable,
		"step":           cfg.Step,
		"dir":            cfg.Dir,
		"retractedLimit": cfg.RetractedLimit,
		"deployedLimit":  cfg.DeployedLimit,
	}).Debug("gpio lines requested")

	return c, nil
}

func (c *Chip) output(offset, initial int) (*gpiocdev.Line, error) {
	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsOutput(initial),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to request output line %s:%d: %w", c.name, offset, err)
	}
	return l, nil
}

func (c *Chip) input(offset int) (*gpiocdev.Line, error) {
	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to request input line %s:%d: %w", c.name, offset, err)
	}
	return l, nil
}

func (c *Chip) write(l *gpiocdev.Line, name string, v int) error {
	logrus.WithFields(logrus.Fields{
		"line": name,
		"val":  v,
	}).Trace("Trying to write to gpio")

	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

// asserted reads a pulled-up switch input. A closed switch pulls it low.
func (c *Chip) asserted(l *gpiocdev.Line, name string) (bool, error) {
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"line": name,
		"val":  v,
	}).Trace("Load from gpio succeed")

	return v == 0, nil
}

// Enable enables the driver. EN is active low.
func (c *Chip) Enable(on bool) error {
	v := 1
	if on {
		v = 0
	}
	return c.write(c.enable, "enable", v)
}

// SetDirection sets the DIR line.
func (c *Chip) SetDirection(dir Direction) error {
	v := 0
	if dir == Deploying {
		v = 1
	}
	return c.write(c.dir, "dir", v)
}

// SetStep sets the STEP line. The driver steps on the rising edge.
func (c *Chip) SetStep(high bool) error {
	v := 0
	if high {
		v = 1
	}
	// Not traced through write(): this runs twice per pulse.
	return c.step.SetValue(v)
}

// RetractedLimit reports whether the retracted switch is closed.
func (c *Chip) RetractedLimit() (bool, error) {
	return c.asserted(c.retracted, "retractedLimit")
}

// DeployedLimit reports whether the deployed switch is closed.
func (c *Chip) DeployedLimit() (bool, error) {
	return c.asserted(c.deployed, "deployedLimit")
}

// Close disables the driver and releases all lines.
func (c *Chip) Close() error {
	var firstErr error
	if c.enable != nil {
		if err := c.enable.SetValue(1); err != nil {
			firstErr = err
		}
	}
	for _, l := range []*gpiocdev.Line{c.enable, c.step, c.dir, c.retracted, c.deployed} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
