package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Store persists the travel range across power cycles.
type Store interface {
	// Load returns the stored record and true, or false if there is no
	// valid calibration.
	Load() (Record, bool)
	// Save writes deployed and safetyBuffer together with the marker. It
	// returns once the data is on disk.
	Save(deployed, safetyBuffer int64) error
}

var _ Store = &File{}

// File is a Store backed by a small JSON file.
type File struct {
	mu       sync.Mutex
	filepath string
}

func NewFile(path string) *File {
	return &File{filepath: path}
}

func (f *File) Load() (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	log := logrus.WithField("path", f.filepath)
	log.Debug("checking for stored calibration")

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no stored calibration found")
		} else {
			log.WithError(err).Warn("failed to read stored calibration")
		}
		return Record{}, false
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		log.WithError(err).Warn("failed to unmarshal stored calibration")
		return Record{}, false
	}

	if r.Magic != Magic {
		log.WithField("magic", r.Magic).Info("no valid calibration found")
		return Record{}, false
	}

	if !r.Valid() {
		log.WithField("deployed", r.Deployed).Warn("invalid calibration data")
		return Record{}, false
	}

	log.WithFields(logrus.Fields{
		"deployed":     r.Deployed,
		"safetyBuffer": r.SafetyBuffer,
	}).Info("loaded stored calibration")

	return r, true
}

func (f *File) Save(deployed, safetyBuffer int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := json.MarshalIndent(Record{
		Magic:        Magic,
		Deployed:     deployed,
		SafetyBuffer: safetyBuffer,
	}, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to marshal calibration")
	}

	dir := filepath.Dir(f.filepath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".calibration-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.filepath); err != nil {
		return pkgerrors.Wrapf(err, "failed to move calibration to %s", f.filepath)
	}

	logrus.WithFields(logrus.Fields{
		"path":         f.filepath,
		"deployed":     deployed,
		"safetyBuffer": safetyBuffer,
	}).Info("calibration saved")

	return nil
}
