package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMeasure(t *testing.T) {
	calls := 0
	s, err := Measure("sleep", 5, func() error {
		calls++
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, "sleep", s.Name)
	assert.Equal(t, 5, s.N)
	assert.GreaterOrEqual(t, s.Min, time.Millisecond)
	assert.LessOrEqual(t, s.Min, s.Median)
	assert.LessOrEqual(t, s.Median, s.Max)
	assert.Len(t, s.Fields(), 7)
}

func TestMeasureStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Measure("fail", 10, func() error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "fail: iteration 2")

	_, err = Measure("none", 0, func() error { return nil })
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s, err := summarize("fixed", stats.Float64Data{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(25), s.Mean)
	assert.Equal(t, time.Duration(25), s.Median)
	assert.Equal(t, time.Duration(10), s.Min)
	assert.Equal(t, time.Duration(40), s.Max)
}

func TestProfilerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfile:   filepath.Join(dir, "cpu.prof"),
		MemProfile:   filepath.Join(dir, "mem.prof"),
		BlockProfile: filepath.Join(dir, "block.prof"),
		MutexProfile: filepath.Join(dir, "mutex.prof"),
	}
	p := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, p.Start())
	_, err := Measure("spin", 3, func() error {
		x := 0
		for i := 0; i < 1e5; i++ {
			x += i
		}
		_ = x
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Stop())

	for _, path := range []string{cfg.CPUProfile, cfg.MemProfile, cfg.BlockProfile, cfg.MutexProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Positive(t, info.Size(), path)
	}
}

func TestProfilerBadPath(t *testing.T) {
	p := New(Config{CPUProfile: filepath.Join(t.TempDir(), "missing", "cpu.prof")}, nil)
	require.Error(t, p.Start())
}
