// Package stress implements bounded-duration resource stressors: CPU
// load, memory pressure, disk IO, network shaping and thermal/frequency
// pinning. Each stressor runs its own background goroutines and
// guarantees full cleanup on stop.
package stress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindCPU     Kind = "cpu"
	KindMemory  Kind = "memory"
	KindDisk    Kind = "disk_io"
	KindNetwork Kind = "network"
	KindThermal Kind = "thermal"
)

// Status is a point-in-time snapshot of one stressor. It is recomputed
// on every query and never stored.
type Status struct {
	Kind        Kind              `json:"type"`
	Running     bool              `json:"isRunning"`
	RemainingMs int64             `json:"remainingTimeMs"`
	Data        map[string]string `json:"data"`
}

// Stressor is the common lifecycle surface shared by all five kinds.
// Start methods are typed per concrete stressor; starting while running
// returns ErrAlreadyRunning without touching the active run.
type Stressor interface {
	Kind() Kind
	Stop()
	IsRunning() bool
	Status() Status
}

var ErrAlreadyRunning = fmt.Errorf("stress run already active")

// run is the lifecycle core embedded by every stressor: an atomic
// running flag, the activation window, a stop channel and the join
// group for background goroutines.
type run struct {
	running  atomic.Bool
	startMs  atomic.Int64
	duration atomic.Int64

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// begin transitions idle -> running and arms a fresh stop channel.
// Returns false when a run is already active.
func (r *run) begin(duration time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return false
	}
	r.stopCh = make(chan struct{})
	r.stopOnce = &sync.Once{}
	r.startMs.Store(nowMs())
	r.duration.Store(duration.Milliseconds())
	r.running.Store(true)
	return true
}

func (r *run) isRunning() bool {
	return r.running.Load()
}

// markStopped flips the running flag. Safe to call from several worker
// goroutines when the duration expires.
func (r *run) markStopped() {
	r.running.Store(false)
}

func (r *run) deadline() int64 {
	return r.startMs.Load() + r.duration.Load()
}

func (r *run) remainingMs() int64 {
	if !r.running.Load() {
		return 0
	}
	remaining := r.deadline() - nowMs()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *run) stopChan() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCh
}

func (r *run) stopRequested() bool {
	ch := r.stopChan()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// halt signals the background goroutines and joins them. Idempotent;
// safe after the run already expired on its own.
func (r *run) halt() {
	r.mu.Lock()
	once, ch := r.stopOnce, r.stopCh
	r.mu.Unlock()

	if once != nil && ch != nil {
		once.Do(func() { close(ch) })
	}
	r.wg.Wait()
	r.markStopped()
}

// sleepInterruptible sleeps for d or until the stop channel closes.
// Returns false when interrupted.
func (r *run) sleepInterruptible(d time.Duration) bool {
	select {
	case <-r.stopChan():
		return false
	case <-time.After(d):
		return true
	}
}
