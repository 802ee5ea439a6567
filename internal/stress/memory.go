package stress

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

type MemoryConfig struct {
	TargetFreeMB     int
	ChunkSizeMB      int
	Duration         time.Duration
	UseAnonymousMmap bool
	LockMemory       bool
}

// availableMemoryMB reads the OS "available memory" figure. Swappable
// in tests.
type availableMemoryMB func() (int64, error)

func gopsutilAvailableMB() (int64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return int64(vm.Available / (1024 * 1024)), nil
}

type memChunk struct {
	mapped []byte // set when allocated via anonymous mmap
	heap   []byte
	locked bool
}

// MemoryStressor allocates and touches memory until the OS-reported
// available figure drops to a configured floor, then re-allocates
// whenever the OS claws memory back.
type MemoryStressor struct {
	run

	mu     sync.Mutex
	config MemoryConfig
	chunks []memChunk

	allocatedBytes atomic.Int64

	availableMB availableMemoryMB
}

func NewMemoryStressor() *MemoryStressor {
	return &MemoryStressor{availableMB: gopsutilAvailableMB}
}

func (s *MemoryStressor) Kind() Kind { return KindMemory }

func (s *MemoryStressor) Start(cfg MemoryConfig) error {
	if cfg.ChunkSizeMB <= 0 {
		cfg.ChunkSizeMB = 10
	}
	if cfg.TargetFreeMB < 0 {
		cfg.TargetFreeMB = 0
	}

	if !s.begin(cfg.Duration) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.allocatedBytes.Store(0)

	log.Printf("memory stress: target %d MB free, %d MB chunks for %s",
		cfg.TargetFreeMB, cfg.ChunkSizeMB, cfg.Duration)

	s.wg.Add(1)
	go s.worker(cfg)
	return nil
}

func (s *MemoryStressor) Stop() {
	s.halt()
	s.release()
}

func (s *MemoryStressor) IsRunning() bool { return s.isRunning() }

func (s *MemoryStressor) worker(cfg MemoryConfig) {
	defer s.wg.Done()

	chunkBytes := int64(cfg.ChunkSizeMB) * 1024 * 1024
	deadline := s.deadline()

	// Acquisition: push available memory down to the floor.
	for !s.stopRequested() && nowMs() < deadline {
		available, err := s.availableMB()
		if err != nil {
			log.Printf("memory stress: available-memory probe failed: %v", err)
			if !s.sleepInterruptible(500 * time.Millisecond) {
				break
			}
			continue
		}
		if available <= int64(cfg.TargetFreeMB) {
			break
		}

		if !s.allocateChunk(cfg, chunkBytes) {
			// Allocation failures are non-fatal: back off and retry at
			// whatever pressure we already hold.
			if !s.sleepInterruptible(100 * time.Millisecond) {
				break
			}
		}
	}

	// Maintenance: re-establish pressure when the OS reclaims memory.
	for !s.stopRequested() && nowMs() < deadline {
		if !s.sleepInterruptible(500 * time.Millisecond) {
			break
		}

		available, err := s.availableMB()
		if err != nil {
			continue
		}
		if available > int64(cfg.TargetFreeMB+cfg.ChunkSizeMB) {
			s.allocateChunk(cfg, chunkBytes)
		}
	}

	s.markStopped()
	s.release()
}

// allocateChunk grabs one chunk, touches every byte to defeat lazy
// allocation, optionally pins it in RAM, and tracks it for release.
func (s *MemoryStressor) allocateChunk(cfg MemoryConfig, size int64) bool {
	chunk := memChunk{}

	if cfg.UseAnonymousMmap {
		b, err := unix.Mmap(-1, 0, int(size),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			log.Printf("memory stress: mmap of %d bytes failed: %v", size, err)
			return false
		}
		chunk.mapped = b
	} else {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("memory stress: heap allocation of %d bytes failed: %v", size, r)
			}
		}()
		chunk.heap = make([]byte, size)
	}

	buf := chunk.mapped
	if buf == nil {
		buf = chunk.heap
	}
	for i := range buf {
		buf[i] = 0xAA
	}

	if cfg.LockMemory {
		if err := unix.Mlock(buf); err != nil {
			log.Printf("memory stress: mlock failed (needs privilege): %v", err)
		} else {
			chunk.locked = true
		}
	}

	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()
	s.allocatedBytes.Add(size)
	return true
}

// release unlocks and frees every tracked chunk. Runs on explicit stop
// and on natural expiry; the second caller finds nothing to do.
func (s *MemoryStressor) release() {
	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.mu.Unlock()

	if len(chunks) == 0 {
		return
	}

	for _, c := range chunks {
		if c.locked {
			buf := c.mapped
			if buf == nil {
				buf = c.heap
			}
			unix.Munlock(buf)
		}
		if c.mapped != nil {
			unix.Munmap(c.mapped)
		}
		// Heap chunks are dropped and left to the GC.
	}
	s.allocatedBytes.Store(0)
	log.Printf("memory stress: released %d chunks", len(chunks))
}

func (s *MemoryStressor) Status() Status {
	status := Status{
		Kind:        KindMemory,
		Running:     s.isRunning(),
		RemainingMs: s.remainingMs(),
		Data:        map[string]string{},
	}

	if status.Running {
		s.mu.Lock()
		target := s.config.TargetFreeMB
		s.mu.Unlock()

		status.Data["allocatedMB"] = strconv.FormatInt(s.allocatedBytes.Load()/(1024*1024), 10)
		status.Data["targetFreeMB"] = strconv.Itoa(target)
		if available, err := s.availableMB(); err == nil {
			status.Data["availableMB"] = strconv.FormatInt(available, 10)
		}
	}

	return status
}
