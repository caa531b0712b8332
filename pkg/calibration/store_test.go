package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "calibration.json")
	f := NewFile(path)

	_, ok := f.Load()
	assert.False(t, ok, "missing file means no calibration")

	require.NoError(t, f.Save(12000, 200))

	r, ok := f.Load()
	require.True(t, ok)
	assert.Equal(t, Record{Magic: Magic, Deployed: 12000, SafetyBuffer: 200}, r)
}

func TestFileLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"garbage", "not json"},
		{"no magic", `{"deployed":12000,"safetyBuffer":200}`},
		{"wrong magic", `{"magic":1234,"deployed":12000,"safetyBuffer":200}`},
		{"zero deployed", `{"magic":48385,"deployed":0,"safetyBuffer":200}`},
		{"negative deployed", `{"magic":48385,"deployed":-5,"safetyBuffer":200}`},
		{"deployed too large", `{"magic":48385,"deployed":100001,"safetyBuffer":200}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "calibration.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, ok := NewFile(path).Load()
			assert.False(t, ok)
		})
	}
}

func TestFileLoadAcceptsUpperBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"magic":48385,"deployed":100000,"safetyBuffer":200}`), 0644))

	r, ok := NewFile(path).Load()
	require.True(t, ok)
	assert.Equal(t, int64(100000), r.Deployed)
}

func TestRecordValid(t *testing.T) {
	assert.True(t, Record{Magic: Magic, Deployed: 1}.Valid())
	assert.False(t, Record{Magic: Magic}.Valid())
	assert.False(t, Record{Deployed: 1}.Valid())
}
