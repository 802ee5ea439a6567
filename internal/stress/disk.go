package stress

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type DiskConfig struct {
	ThroughputMBps int
	ChunkSizeKB    int
	Duration       time.Duration
	TestPath       string
	UseDirectIO    bool
	SyncWrites     bool
}

// DiskStressor writes, reads back and deletes chunk-sized files in a
// target directory, throttled to a configured throughput.
type DiskStressor struct {
	run

	mu     sync.Mutex
	config DiskConfig

	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
}

func NewDiskStressor() *DiskStressor {
	return &DiskStressor{}
}

func (s *DiskStressor) Kind() Kind { return KindDisk }

func (s *DiskStressor) Start(cfg DiskConfig) error {
	if cfg.ThroughputMBps <= 0 {
		cfg.ThroughputMBps = 5
	}
	if cfg.ChunkSizeKB <= 0 {
		cfg.ChunkSizeKB = 100
	}
	if cfg.TestPath == "" {
		cfg.TestPath = filepath.Join(os.TempDir(), "stressd_io")
	}

	if s.isRunning() {
		return ErrAlreadyRunning
	}
	if err := os.MkdirAll(cfg.TestPath, 0o755); err != nil {
		return fmt.Errorf("create test directory %s: %w", cfg.TestPath, err)
	}

	if !s.begin(cfg.Duration) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.bytesWritten.Store(0)
	s.bytesRead.Store(0)

	log.Printf("disk stress: %d MB/s in %d KB chunks under %s for %s",
		cfg.ThroughputMBps, cfg.ChunkSizeKB, cfg.TestPath, cfg.Duration)

	s.wg.Add(1)
	go s.worker(cfg)
	return nil
}

func (s *DiskStressor) Stop() {
	s.halt()
	s.cleanup()
}

func (s *DiskStressor) IsRunning() bool { return s.isRunning() }

const directIOAlignment = 4096

// alignedBuffer returns a size-byte slice whose base address is
// aligned for O_DIRECT.
func alignedBuffer(size int) []byte {
	raw := make([]byte, size+directIOAlignment)
	off := 0
	if rem := int(uintptr(addrOf(raw)) % directIOAlignment); rem != 0 {
		off = directIOAlignment - rem
	}
	return raw[off : off+size]
}

func (s *DiskStressor) worker(cfg DiskConfig) {
	defer s.wg.Done()

	chunkSize := cfg.ChunkSizeKB * 1024
	targetBytesPerSecond := int64(cfg.ThroughputMBps) * 1024 * 1024
	direct := cfg.UseDirectIO && directIOSupported

	var buffer []byte
	if direct {
		buffer = alignedBuffer(chunkSize)
	} else {
		buffer = make([]byte, chunkSize)
	}
	rand.Read(buffer)

	fileCounter := 0
	cycleStart := nowMs()
	var bytesThisCycle int64
	deadline := s.deadline()

	for !s.stopRequested() && nowMs() < deadline {
		path := filepath.Join(cfg.TestPath, fmt.Sprintf("stress_%d.tmp", fileCounter))
		fileCounter++

		n, err := s.writeChunk(path, buffer, direct, cfg.SyncWrites)
		if err != nil {
			if direct {
				// Alignment or filesystem rejection: fall back to
				// buffered IO for the rest of the run.
				log.Printf("disk stress: direct IO failed (%v), falling back to buffered", err)
				direct = false
				continue
			}
			log.Printf("disk stress: write %s: %v", path, err)
			if !s.sleepInterruptible(10 * time.Millisecond) {
				break
			}
			continue
		}
		s.bytesWritten.Add(int64(n))
		bytesThisCycle += int64(n)

		if rn, err := s.readChunk(path, buffer, direct); err == nil {
			s.bytesRead.Add(int64(rn))
			bytesThisCycle += int64(rn)
		}

		os.Remove(path)

		// Throttle against the target rate over the current ~1s window.
		elapsed := nowMs() - cycleStart
		if elapsed > 0 {
			expected := targetBytesPerSecond * elapsed / 1000
			if bytesThisCycle > expected {
				sleepMs := (bytesThisCycle - expected) * 1000 / targetBytesPerSecond
				if sleepMs > 0 && sleepMs < 1000 {
					if !s.sleepInterruptible(time.Duration(sleepMs) * time.Millisecond) {
						break
					}
				}
			}
		}
		if elapsed >= 1000 {
			cycleStart = nowMs()
			bytesThisCycle = 0
		}
	}

	s.markStopped()
	s.cleanup()
}

func (s *DiskStressor) writeChunk(path string, buffer []byte, direct, sync bool) (int, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if direct {
		flags |= oDirect
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(buffer)
	if err != nil {
		f.Close()
		return n, err
	}
	if sync {
		f.Sync()
	}
	return n, f.Close()
}

func (s *DiskStressor) readChunk(path string, buffer []byte, direct bool) (int, error) {
	flags := os.O_RDONLY
	if direct {
		flags |= oDirect
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Read(buffer)
}

// cleanup sweeps leftover stress_*.tmp files from the test directory.
func (s *DiskStressor) cleanup() {
	s.mu.Lock()
	dir := s.config.TestPath
	s.mu.Unlock()
	if dir == "" {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "stress_") && strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

func (s *DiskStressor) Status() Status {
	status := Status{
		Kind:        KindDisk,
		Running:     s.isRunning(),
		RemainingMs: s.remainingMs(),
		Data:        map[string]string{},
	}

	if status.Running {
		s.mu.Lock()
		throughput := s.config.ThroughputMBps
		s.mu.Unlock()
		status.Data["bytesWrittenMB"] = strconv.FormatInt(s.bytesWritten.Load()/(1024*1024), 10)
		status.Data["bytesReadMB"] = strconv.FormatInt(s.bytesRead.Load()/(1024*1024), 10)
		status.Data["throughputMBps"] = strconv.Itoa(throughput)
	}

	return status
}
