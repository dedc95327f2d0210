// Package profile collects pprof profiles and per-operation timings for the
// afhe-profile command.
package profile

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// Config names the profile files to write. Empty names are skipped.
type Config struct {
	CPUProfile   string
	MemProfile   string
	BlockProfile string
	MutexProfile string
}

// Profiler writes the profiles named in its Config between Start and Stop.
type Profiler struct {
	cfg     Config
	log     *zap.Logger
	cpuFile *os.File
	start   time.Time
}

// New returns a profiler. A nil log discards output.
func New(cfg Config, log *zap.Logger) *Profiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Profiler{cfg: cfg, log: log}
}

// Start enables the requested profiles.
func (p *Profiler) Start() error {
	p.start = time.Now()
	if p.cfg.BlockProfile != "" {
		runtime.SetBlockProfileRate(1)
	}
	if p.cfg.MutexProfile != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if p.cfg.CPUProfile == "" {
		return nil
	}
	f, err := os.Create(p.cfg.CPUProfile)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop ends CPU profiling and writes the heap, block and mutex profiles.
func (p *Profiler) Stop() error {
	p.log.Info("profiling finished", zap.Duration("duration", time.Since(p.start)))

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			return fmt.Errorf("close cpu profile: %w", err)
		}
		p.cpuFile = nil
		p.log.Info("profile written", zap.String("kind", "cpu"), zap.String("path", p.cfg.CPUProfile))
	}
	if p.cfg.MemProfile != "" {
		runtime.GC()
		if err := p.write("heap", p.cfg.MemProfile); err != nil {
			return err
		}
	}
	if p.cfg.BlockProfile != "" {
		err := p.write("block", p.cfg.BlockProfile)
		runtime.SetBlockProfileRate(0)
		if err != nil {
			return err
		}
	}
	if p.cfg.MutexProfile != "" {
		err := p.write("mutex", p.cfg.MutexProfile)
		runtime.SetMutexProfileFraction(0)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Profiler) write(kind, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s profile: %w", kind, err)
	}
	defer f.Close()
	if err := pprof.Lookup(kind).WriteTo(f, 0); err != nil {
		return fmt.Errorf("write %s profile: %w", kind, err)
	}
	p.log.Info("profile written", zap.String("kind", kind), zap.String("path", path))
	return nil
}

// LogMemStats logs the current allocator statistics.
func LogMemStats(log *zap.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Info("memory",
		zap.Uint64("alloc_mb", m.Alloc>>20),
		zap.Uint64("total_alloc_mb", m.TotalAlloc>>20),
		zap.Uint64("sys_mb", m.Sys>>20),
		zap.Uint32("num_gc", m.NumGC),
		zap.Uint64("heap_objects", m.HeapObjects),
	)
}

// Summary is the timing distribution of one operation.
type Summary struct {
	Name   string
	N      int
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Fields renders s for structured logging.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("op", s.Name),
		zap.Int("n", s.N),
		zap.Duration("mean", s.Mean),
		zap.Duration("median", s.Median),
		zap.Duration("p95", s.P95),
		zap.Duration("min", s.Min),
		zap.Duration("max", s.Max),
	}
}

// Measure runs fn n times and summarizes the durations. The first error
// stops the run.
func Measure(name string, n int, fn func() error) (Summary, error) {
	if n < 1 {
		return Summary{}, fmt.Errorf("%s: need at least one iteration, got %d", name, n)
	}
	samples := make(stats.Float64Data, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if err := fn(); err != nil {
			return Summary{}, fmt.Errorf("%s: iteration %d: %w", name, i, err)
		}
		samples = append(samples, float64(time.Since(start)))
	}
	return summarize(name, samples)
}

func summarize(name string, samples stats.Float64Data) (Summary, error) {
	s := Summary{Name: name, N: samples.Len()}
	for _, f := range []struct {
		dst  *time.Duration
		calc func() (float64, error)
	}{
		{&s.Mean, samples.Mean},
		{&s.Median, samples.Median},
		{&s.P95, func() (float64, error) { return samples.Percentile(95) }},
		{&s.Min, samples.Min},
		{&s.Max, samples.Max},
	} {
		v, err := f.calc()
		if err != nil {
			return Summary{}, fmt.Errorf("%s: %w", name, err)
		}
		*f.dst = time.Duration(v)
	}
	return s, nil
}
