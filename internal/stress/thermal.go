package stress

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomek7667/stressd/internal/sysfs"
)

type ThermalConfig struct {
	MaxFrequencyPercent int // target scaling_max_freq as a % of the hw range
	ForceAllCoresOnline bool
	Duration            time.Duration
}

// ThermalStressor pushes the device toward thermal limits by forcing
// cores online and pinning governors to performance, then keeps the
// platform from undoing it for the run's duration. Every sysfs value
// it touches is saved once and replayed in full on stop.
type ThermalStressor struct {
	run

	mu       sync.Mutex
	config   ThermalConfig
	original map[string]string // sysfs path -> saved value

	fs          *sysfs.FS
	totalCores  atomic.Int32
	coresOnline atomic.Int32
}

func NewThermalStressor(fs *sysfs.FS) *ThermalStressor {
	return &ThermalStressor{fs: fs, original: map[string]string{}}
}

func (s *ThermalStressor) Kind() Kind { return KindThermal }

func (s *ThermalStressor) Start(cfg ThermalConfig) error {
	if cfg.MaxFrequencyPercent <= 0 || cfg.MaxFrequencyPercent > 100 {
		cfg.MaxFrequencyPercent = 100
	}

	if !s.begin(cfg.Duration) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.config = cfg
	s.original = map[string]string{}
	s.mu.Unlock()

	s.totalCores.Store(int32(s.fs.CoreCount()))

	log.Printf("thermal stress: maxFreq=%d%% forceAllCores=%v for %s",
		cfg.MaxFrequencyPercent, cfg.ForceAllCoresOnline, cfg.Duration)

	s.wg.Add(1)
	go s.worker(cfg)
	return nil
}

func (s *ThermalStressor) Stop() {
	s.halt()
	s.restore()
}

func (s *ThermalStressor) IsRunning() bool { return s.isRunning() }

func (s *ThermalStressor) worker(cfg ThermalConfig) {
	defer s.wg.Done()

	s.apply(cfg)

	deadline := s.deadline()
	for !s.stopRequested() && nowMs() < deadline {
		total := int(s.totalCores.Load())

		online := 0
		for cpu := 0; cpu < total; cpu++ {
			if s.fs.IsOnline(cpu) {
				online++
			}
		}
		s.coresOnline.Store(int32(online))

		// The platform may hotplug cores back to sleep mid-run.
		if cfg.ForceAllCoresOnline && online < total {
			for cpu := 1; cpu < total; cpu++ {
				if !s.fs.IsOnline(cpu) {
					s.fs.SetOnline(cpu, true)
				}
			}
		}

		if !s.sleepInterruptible(time.Second) {
			break
		}
	}

	s.markStopped()
}

// saveOriginal records a sysfs value the first time it is touched in
// this activation window.
func (s *ThermalStressor) saveOriginal(path, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	if _, ok := s.original[path]; !ok {
		s.original[path] = value
	}
	s.mu.Unlock()
}

func (s *ThermalStressor) apply(cfg ThermalConfig) {
	total := int(s.totalCores.Load())

	if cfg.ForceAllCoresOnline {
		for cpu := 1; cpu < total; cpu++ { // core 0 is always online
			if s.fs.IsOnline(cpu) {
				s.saveOriginal(s.fs.OnlinePath(cpu), "1")
			} else {
				s.saveOriginal(s.fs.OnlinePath(cpu), "0")
			}
			if err := s.fs.SetOnline(cpu, true); err != nil {
				log.Printf("thermal stress: cpu%d online: %v", cpu, err)
			}
		}
	}

	for cpu := 0; cpu < total; cpu++ {
		if !s.fs.IsOnline(cpu) {
			continue
		}

		if gov, err := s.fs.Governor(cpu); err == nil {
			s.saveOriginal(s.fs.GovernorPath(cpu), gov)
		}
		if err := s.fs.SetGovernor(cpu, "performance"); err != nil {
			log.Printf("thermal stress: cpu%d governor: %v", cpu, err)
		}

		maxFreq, err := s.fs.HardwareMaxFreq(cpu)
		if err != nil || maxFreq <= 0 {
			continue
		}
		if cfg.MaxFrequencyPercent < 100 {
			minFreq, err := s.fs.HardwareMinFreq(cpu)
			if err != nil {
				minFreq = 0
			}
			target := minFreq + (maxFreq-minFreq)*int64(cfg.MaxFrequencyPercent)/100

			s.saveOriginal(s.fs.MaxFreqPath(cpu), strconv.FormatInt(maxFreq, 10))
			if err := s.fs.SetScalingMaxFreq(cpu, target); err != nil {
				log.Printf("thermal stress: cpu%d max freq: %v", cpu, err)
				continue
			}
			log.Printf("thermal stress: cpu%d max freq %d kHz (%d%% of range)",
				cpu, target, cfg.MaxFrequencyPercent)
		}
	}
}

// restore replays every saved sysfs value and clears the saved map.
// The map is only repopulated by the next activation window.
func (s *ThermalStressor) restore() {
	s.mu.Lock()
	saved := s.original
	s.original = map[string]string{}
	s.mu.Unlock()

	if len(saved) == 0 {
		return
	}
	for path, value := range saved {
		if err := s.fs.ReplayRaw(path, value); err != nil {
			log.Printf("thermal stress: restore %s: %v", path, err)
		}
	}
	log.Printf("thermal stress: restored %d settings", len(saved))
}

func (s *ThermalStressor) Status() Status {
	status := Status{
		Kind:        KindThermal,
		Running:     s.isRunning(),
		RemainingMs: s.remainingMs(),
		Data:        map[string]string{},
	}

	if status.Running {
		s.mu.Lock()
		cfg := s.config
		s.mu.Unlock()
		status.Data["totalCores"] = strconv.Itoa(int(s.totalCores.Load()))
		status.Data["onlineCores"] = strconv.Itoa(int(s.coresOnline.Load()))
		status.Data["maxFrequencyPercent"] = strconv.Itoa(cfg.MaxFrequencyPercent)
		status.Data["forceAllCoresOnline"] = strconv.FormatBool(cfg.ForceAllCoresOnline)
	}

	return status
}
