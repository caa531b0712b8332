package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		SafetyBuffer:    ptr.To(int64(200)),
		PulseWidth:      ptr.To(Duration(500 * time.Microsecond)),
		DirectionSettle: ptr.To(Duration(10 * time.Microsecond)),
		SettleDelay:     ptr.To(Duration(500 * time.Millisecond)),
		MaxSeekSteps:    ptr.To(int64(50000)),
		CalibrateOnBoot: ptr.To(true),
		GPIOChip:        ptr.To("gpiochip0"),
		Pins: &gpio.PinConfig{
			Enable:         4,
			Step:           5,
			Dir:            6,
			RetractedLimit: 15,
			DeployedLimit:  16,
		},
		CalibrationPath:    ptr.To("/var/lib/blind/calibration.json"),
		ListenAddr:         ptr.To(""),
		SerialPort:         ptr.To(""),
		SerialBaudRate:     ptr.To(115200),
		DeployCron:         ptr.To(""),
		RetractCron:        ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}
)

// cronParser accepts an optional seconds field and descriptors like @daily.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a schedule expression the same way the daemon does.
func ParseCron(spec string) (cron.Schedule, error) {
	return cronParser.Parse(spec)
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Unset fields take their defaults.
type RawFileConfig struct {
	SafetyBuffer       *int64          `json:"safetyBuffer,omitempty"`
	PulseWidth         *Duration       `json:"pulseWidth,omitempty"`
	DirectionSettle    *Duration       `json:"directionSettle,omitempty"`
	SettleDelay        *Duration       `json:"settleDelay,omitempty"`
	MaxSeekSteps       *int64          `json:"maxSeekSteps,omitempty"`
	CalibrateOnBoot    *bool           `json:"calibrateOnBoot,omitempty"`
	GPIOChip           *string         `json:"gpioChip,omitempty"`
	Pins               *gpio.PinConfig `json:"pins,omitempty"`
	CalibrationPath    *string         `json:"calibrationPath,omitempty"`
	ListenAddr         *string         `json:"listenAddr,omitempty"`
	SerialPort         *string         `json:"serialPort,omitempty"`
	SerialBaudRate     *int            `json:"serialBaudRate,omitempty"`
	DeployCron         *string         `json:"deployCron,omitempty"`
	RetractCron        *string         `json:"retractCron,omitempty"`
	AllowNonRootAccess *bool           `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		SafetyBuffer:       ptr.To(c.SafetyBuffer()),
		PulseWidth:         ptr.To(Duration(c.PulseWidth())),
		DirectionSettle:    ptr.To(Duration(c.DirectionSettle())),
		SettleDelay:        ptr.To(Duration(c.SettleDelay())),
		MaxSeekSteps:       ptr.To(c.MaxSeekSteps()),
		CalibrateOnBoot:    ptr.To(c.CalibrateOnBoot()),
		GPIOChip:           ptr.To(c.GPIOChip()),
		Pins:               ptr.To(c.Pins()),
		CalibrationPath:    ptr.To(c.CalibrationPath()),
		ListenAddr:         ptr.To(c.ListenAddr()),
		SerialPort:         ptr.To(c.SerialPort()),
		SerialBaudRate:     ptr.To(c.SerialBaudRate()),
		DeployCron:         ptr.To(c.DeployCron()),
		RetractCron:        ptr.To(c.RetractCron()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// get returns *field(f.c), falling back to the default. Callers hold f.mu.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}
	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) SafetyBuffer() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *int64 { return c.SafetyBuffer })
}

func (f *File) PulseWidth() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return time.Duration(get(f, func(c *RawFileConfig) *Duration { return c.PulseWidth }))
}

func (f *File) DirectionSettle() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return time.Duration(get(f, func(c *RawFileConfig) *Duration { return c.DirectionSettle }))
}

func (f *File) SettleDelay() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return time.Duration(get(f, func(c *RawFileConfig) *Duration { return c.SettleDelay }))
}

func (f *File) MaxSeekSteps() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *int64 { return c.MaxSeekSteps })
}

func (f *File) CalibrateOnBoot() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *bool { return c.CalibrateOnBoot })
}

func (f *File) GPIOChip() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.GPIOChip })
}

// Pins returns the line offsets. The pins object is replaced as a whole;
// a partial object in the file leaves the missing lines at 0.
func (f *File) Pins() gpio.PinConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *gpio.PinConfig { return c.Pins })
}

func (f *File) CalibrationPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.CalibrationPath })
}

func (f *File) ListenAddr() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.ListenAddr })
}

func (f *File) SerialPort() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.SerialPort })
}

func (f *File) SerialBaudRate() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *int { return c.SerialBaudRate })
}

func (f *File) DeployCron() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.DeployCron })
}

func (f *File) RetractCron() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *string { return c.RetractCron })
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetSafetyBuffer(i int64) error {
	if f.c == nil {
		panic("config is nil")
	}
	if i <= 0 {
		return pkgerrors.Errorf("safety buffer must be positive, got %d", i)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SafetyBuffer = &i
	return nil
}

func (f *File) SetDeployCron(spec string) error {
	if f.c == nil {
		panic("config is nil")
	}
	if err := validateCron(spec); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DeployCron = &spec
	return nil
}

func (f *File) SetRetractCron(spec string) error {
	if f.c == nil {
		panic("config is nil")
	}
	if err := validateCron(spec); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.RetractCron = &spec
	return nil
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func validateCron(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := ParseCron(spec); err != nil {
		return pkgerrors.Wrapf(err, "invalid cron expression %q", spec)
	}
	return nil
}

func (f *File) Validate() error {
	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if v := f.SafetyBuffer(); v <= 0 {
		return pkgerrors.Errorf("safetyBuffer must be positive, got %d", v)
	}
	if v := f.PulseWidth(); v <= 0 {
		return pkgerrors.Errorf("pulseWidth must be positive, got %s", v)
	}
	if v := f.DirectionSettle(); v < 0 {
		return pkgerrors.Errorf("directionSettle must not be negative, got %s", v)
	}
	if v := f.SettleDelay(); v < 0 {
		return pkgerrors.Errorf("settleDelay must not be negative, got %s", v)
	}
	if v := f.MaxSeekSteps(); v <= 0 {
		return pkgerrors.Errorf("maxSeekSteps must be positive, got %d", v)
	}
	if v := f.SerialBaudRate(); v <= 0 {
		return pkgerrors.Errorf("serialBaudRate must be positive, got %d", v)
	}
	if f.CalibrationPath() == "" {
		return pkgerrors.New("calibrationPath must not be empty")
	}

	p := f.Pins()
	seen := map[int]string{}
	for name, offset := range map[string]int{
		"enable":         p.Enable,
		"step":           p.Step,
		"dir":            p.Dir,
		"retractedLimit": p.RetractedLimit,
		"deployedLimit":  p.DeployedLimit,
	} {
		if offset < 0 {
			return pkgerrors.Errorf("pin %s must not be negative, got %d", name, offset)
		}
		if other, ok := seen[offset]; ok {
			return pkgerrors.Errorf("pins %s and %s share line %d", other, name, offset)
		}
		seen[offset] = name
	}

	if err := validateCron(f.DeployCron()); err != nil {
		return pkgerrors.Wrap(err, "deployCron")
	}
	if err := validateCron(f.RetractCron()); err != nil {
		return pkgerrors.Wrap(err, "retractCron")
	}

	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"safetyBuffer":       f.SafetyBuffer(),
		"pulseWidth":         f.PulseWidth().String(),
		"directionSettle":    f.DirectionSettle().String(),
		"settleDelay":        f.SettleDelay().String(),
		"maxSeekSteps":       f.MaxSeekSteps(),
		"calibrateOnBoot":    f.CalibrateOnBoot(),
		"gpioChip":           f.GPIOChip(),
		"pins":               f.Pins(),
		"calibrationPath":    f.CalibrationPath(),
		"listenAddr":         f.ListenAddr(),
		"serialPort":         f.SerialPort(),
		"serialBaudRate":     f.SerialBaudRate(),
		"deployCron":         f.DeployCron(),
		"retractCron":        f.RetractCron(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
