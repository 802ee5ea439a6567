// Package cpufreq pins the CPU max-frequency ceiling across cores and
// guarantees the original values come back, either on demand or on an
// auto-restore deadline. A periodic tick fights the platform's own
// frequency-scaling daemons by re-applying the target when it drifts.
package cpufreq

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomek7667/stressd/internal/sysfs"
)

const tickInterval = 1500 * time.Millisecond

// State is the governor's status snapshot.
type State struct {
	IsLimited          bool    `json:"isLimited"`
	TargetMaxFreq      int64   `json:"targetMaxFreq"`
	ActualMaxFreq      int64   `json:"actualMaxFreq"`
	OriginalMaxFreq    int64   `json:"originalMaxFreq"`
	Cores              int     `json:"cores"`
	AvailableFreqs     []int64 `json:"availableFreqs"`
	AutoRestoreMs      int64   `json:"autoRestoreMs"`
	RemainingRestoreMs int64   `json:"remainingRestoreMs"`
}

type Governor struct {
	fs *sysfs.FS

	mu          sync.Mutex
	targetCores []int
	original    map[string]string // scaling_max_freq path -> saved value

	isLimited       atomic.Bool
	targetMaxFreq   atomic.Int64
	originalMaxFreq atomic.Int64
	autoRestoreMs   atomic.Int64
	limitStartMs    atomic.Int64

	tickMu      sync.Mutex
	tickStop    chan struct{}
	tickDone    chan struct{}
	tickRunning bool
}

func NewGovernor(fs *sysfs.FS) *Governor {
	g := &Governor{fs: fs, original: map[string]string{}}
	if hw, err := fs.HardwareMaxFreq(0); err == nil {
		g.originalMaxFreq.Store(hw)
	}
	return g
}

// SetMaxFrequency applies a scaling_max_freq ceiling to the given cores
// (all cores when the set is empty) with an optional auto-restore
// deadline in milliseconds (0 = none). The pre-limit values are saved
// once, on the first limit of an activation window; subsequent calls
// retarget without re-saving. Per-core write failures are logged and
// skipped; the call fails only when no core accepts the frequency.
func (g *Governor) SetMaxFrequency(khz int64, cores []int, autoRestoreMs int64) error {
	if khz <= 0 {
		return fmt.Errorf("invalid frequency %d", khz)
	}

	g.mu.Lock()

	numCores := g.fs.CoreCount()
	targets := append([]int(nil), cores...)
	if len(targets) == 0 {
		for i := 0; i < numCores; i++ {
			targets = append(targets, i)
		}
	}

	if !g.isLimited.Load() {
		g.original = map[string]string{}
		for _, cpu := range targets {
			if orig, err := g.fs.ScalingMaxFreq(cpu); err == nil && orig > 0 {
				g.original[g.fs.MaxFreqPath(cpu)] = strconv.FormatInt(orig, 10)
			}
		}
		if hw, err := g.fs.HardwareMaxFreq(0); err == nil {
			g.originalMaxFreq.Store(hw)
		}
	}

	var applied []int
	for _, cpu := range targets {
		if err := g.fs.SetScalingMaxFreq(cpu, khz); err != nil {
			log.Printf("cpufreq: cpu%d set max freq %d: %v", cpu, khz, err)
			continue
		}
		applied = append(applied, cpu)
	}

	if len(applied) == 0 {
		g.mu.Unlock()
		return fmt.Errorf("no core accepted max frequency %d kHz", khz)
	}

	g.targetCores = applied
	g.targetMaxFreq.Store(khz)
	g.autoRestoreMs.Store(autoRestoreMs)
	g.limitStartMs.Store(time.Now().UnixMilli())
	g.isLimited.Store(true)
	g.mu.Unlock()

	log.Printf("cpufreq: max frequency %d kHz on %d cores, auto-restore %d ms",
		khz, len(applied), autoRestoreMs)

	g.startTicker()
	return nil
}

// Restore replays every saved scaling_max_freq and clears the limit
// state. Safe to call when nothing is limited. The tick goroutine is
// stopped before the lock is taken so it cannot re-apply a value that
// is in the middle of being reverted.
func (g *Governor) Restore() error {
	g.stopTicker()
	return g.restore()
}

// restore reverts saved values without touching the ticker. The tick
// goroutine uses it directly; its loop exits once isLimited drops.
func (g *Governor) restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.isLimited.Load() {
		return nil
	}

	for path, value := range g.original {
		if err := g.fs.ReplayRaw(path, value); err != nil {
			log.Printf("cpufreq: restore %s: %v", path, err)
		}
	}

	g.original = map[string]string{}
	g.targetCores = nil
	g.targetMaxFreq.Store(0)
	g.autoRestoreMs.Store(0)
	g.limitStartMs.Store(0)
	g.isLimited.Store(false)

	log.Printf("cpufreq: original max frequencies restored")
	return nil
}

// Tick checks the auto-restore deadline and re-applies the target to
// any core whose live ceiling drifted. Exported so a shared scheduler
// could drive it instead of the built-in ticker.
func (g *Governor) Tick() {
	if !g.isLimited.Load() {
		return
	}

	if auto := g.autoRestoreMs.Load(); auto > 0 {
		elapsed := time.Now().UnixMilli() - g.limitStartMs.Load()
		if elapsed >= auto {
			log.Printf("cpufreq: auto-restore deadline reached")
			g.restore()
			return
		}
	}

	target := g.targetMaxFreq.Load()
	g.mu.Lock()
	cores := append([]int(nil), g.targetCores...)
	g.mu.Unlock()

	for _, cpu := range cores {
		current, err := g.fs.ScalingMaxFreq(cpu)
		if err != nil {
			continue
		}
		if current != target {
			log.Printf("cpufreq: cpu%d drifted to %d, re-applying %d", cpu, current, target)
			if err := g.fs.SetScalingMaxFreq(cpu, target); err != nil {
				log.Printf("cpufreq: cpu%d re-apply: %v", cpu, err)
			}
		}
	}
}

func (g *Governor) startTicker() {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	if g.tickRunning {
		return
	}
	g.tickStop = make(chan struct{})
	g.tickDone = make(chan struct{})
	g.tickRunning = true

	go func(stop chan struct{}, done chan struct{}) {
		defer func() {
			g.tickMu.Lock()
			if g.tickStop == stop {
				g.tickRunning = false
			}
			g.tickMu.Unlock()
			close(done)
		}()

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g.Tick()
				if !g.isLimited.Load() {
					return
				}
			}
		}
	}(g.tickStop, g.tickDone)
}

func (g *Governor) stopTicker() {
	g.tickMu.Lock()
	if !g.tickRunning {
		g.tickMu.Unlock()
		return
	}
	stop, done := g.tickStop, g.tickDone
	g.tickRunning = false
	g.tickMu.Unlock()

	close(stop)
	<-done
}

func (g *Governor) Status() State {
	state := State{
		IsLimited:       g.isLimited.Load(),
		TargetMaxFreq:   g.targetMaxFreq.Load(),
		OriginalMaxFreq: g.originalMaxFreq.Load(),
		Cores:           g.fs.CoreCount(),
		AvailableFreqs:  g.fs.AvailableFrequencies(0),
		AutoRestoreMs:   g.autoRestoreMs.Load(),
	}

	if state.IsLimited && state.AutoRestoreMs > 0 {
		remaining := state.AutoRestoreMs - (time.Now().UnixMilli() - g.limitStartMs.Load())
		if remaining < 0 {
			remaining = 0
		}
		state.RemainingRestoreMs = remaining
	}

	if actual, err := g.fs.ScalingMaxFreq(0); err == nil {
		state.ActualMaxFreq = actual
	}

	return state
}
