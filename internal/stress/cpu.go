package stress

import (
	"log"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type CPUConfig struct {
	ThreadCount int
	LoadPercent int // 1-100
	Duration    time.Duration
	PinToCores  bool
	TargetCores []int
}

// CPUStressor drives a configurable duty cycle of floating-point work
// across N goroutines, optionally pinned to specific cores.
type CPUStressor struct {
	run

	mu     sync.Mutex
	config CPUConfig

	opsCompleted atomic.Int64
}

func NewCPUStressor() *CPUStressor {
	return &CPUStressor{}
}

func (s *CPUStressor) Kind() Kind { return KindCPU }

func (s *CPUStressor) Start(cfg CPUConfig) error {
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 4
	}
	if cfg.LoadPercent < 1 {
		cfg.LoadPercent = 1
	}
	if cfg.LoadPercent > 100 {
		cfg.LoadPercent = 100
	}

	if !s.begin(cfg.Duration) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.opsCompleted.Store(0)

	log.Printf("cpu stress: %d threads at %d%% for %s", cfg.ThreadCount, cfg.LoadPercent, cfg.Duration)

	numCores := runtime.NumCPU()
	for i := 0; i < cfg.ThreadCount; i++ {
		coreID := -1
		if cfg.PinToCores && len(cfg.TargetCores) > 0 {
			coreID = cfg.TargetCores[i%len(cfg.TargetCores)]
		} else if cfg.PinToCores {
			coreID = i % numCores
		}

		s.wg.Add(1)
		go s.worker(i, coreID, cfg.LoadPercent)
	}

	return nil
}

func (s *CPUStressor) Stop() {
	s.halt()
}

func (s *CPUStressor) IsRunning() bool { return s.isRunning() }

// sleepForLoad computes the idle interval paired with each work slice:
// load 100 never sleeps, load 50 sleeps roughly as long as it worked.
func sleepForLoad(loadPercent int, workSlice time.Duration) time.Duration {
	if loadPercent >= 100 {
		return 0
	}
	if loadPercent < 1 {
		loadPercent = 1
	}
	return time.Duration(100-loadPercent) * workSlice / time.Duration(loadPercent)
}

const cpuWorkSlice = 10 * time.Millisecond

func (s *CPUStressor) worker(id, coreID, loadPercent int) {
	defer s.wg.Done()

	if coreID >= 0 {
		if err := pinToCore(coreID); err != nil {
			log.Printf("cpu stress: thread %d pin to core %d failed: %v", id, coreID, err)
		}
		defer unpinThread()
	}

	sleep := sleepForLoad(loadPercent, cpuWorkSlice)
	deadline := s.deadline()

	for !s.stopRequested() && nowMs() < deadline {
		workEnd := nowMs() + cpuWorkSlice.Milliseconds()
		result := 0.0

		for nowMs() < workEnd && !s.stopRequested() {
			for i := 0; i < 1000; i++ {
				f := float64(i)
				result += math.Sqrt(f) + math.Sin(f) + math.Cos(f)
			}
			s.opsCompleted.Add(1000)
		}
		_ = result

		if sleep > 0 {
			if !s.sleepInterruptible(sleep) {
				break
			}
		}
	}

	// Last goroutine out after natural expiry flips the flag so status
	// reads idle without an explicit Stop.
	s.markStopped()
}

func (s *CPUStressor) Status() Status {
	status := Status{
		Kind:        KindCPU,
		Running:     s.isRunning(),
		RemainingMs: s.remainingMs(),
		Data:        map[string]string{},
	}

	if status.Running {
		s.mu.Lock()
		cfg := s.config
		s.mu.Unlock()
		status.Data["threadCount"] = strconv.Itoa(cfg.ThreadCount)
		status.Data["loadPercentage"] = strconv.Itoa(cfg.LoadPercent)
		status.Data["opsCompleted"] = strconv.FormatInt(s.opsCompleted.Load(), 10)
	}

	return status
}
