package stress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStressorWritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStressor()

	require.NoError(t, s.Start(DiskConfig{
		ThroughputMBps: 1,
		ChunkSizeKB:    16,
		Duration:       10 * time.Second,
		TestPath:       dir,
	}))
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		return s.bytesWritten.Load() > 0 && s.bytesRead.Load() > 0
	}, 3*time.Second, 10*time.Millisecond, "no IO happened")

	s.Stop()
	assert.False(t, s.IsRunning())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "stress_", "temp file left behind: %s", entry.Name())
	}
}

func TestDiskStressorSweepsLeftoverFiles(t *testing.T) {
	dir := t.TempDir()

	// A crashed earlier run may have left files behind; the next run's
	// stop sweeps them too.
	leftover := filepath.Join(dir, "stress_99.tmp")
	require.NoError(t, os.WriteFile(leftover, []byte("stale"), 0o644))
	unrelated := filepath.Join(dir, "keep.dat")
	require.NoError(t, os.WriteFile(unrelated, []byte("mine"), 0o644))

	s := NewDiskStressor()
	require.NoError(t, s.Start(DiskConfig{
		ThroughputMBps: 1,
		ChunkSizeKB:    16,
		Duration:       10 * time.Second,
		TestPath:       dir,
	}))
	s.Stop()

	_, err := os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}

func TestDiskStressorCreatesTestPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "io")
	s := NewDiskStressor()

	require.NoError(t, s.Start(DiskConfig{
		ThroughputMBps: 1,
		ChunkSizeKB:    16,
		Duration:       10 * time.Second,
		TestPath:       dir,
	}))
	defer s.Stop()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDiskStressorUnwritablePathFailsStart(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0o555))
	t.Cleanup(func() { os.Chmod(parent, 0o755) })

	s := NewDiskStressor()
	err := s.Start(DiskConfig{
		ThroughputMBps: 1,
		ChunkSizeKB:    16,
		Duration:       time.Second,
		TestPath:       filepath.Join(parent, "sub"),
	})
	require.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestDiskStressorRejectsSecondStart(t *testing.T) {
	s := NewDiskStressor()
	require.NoError(t, s.Start(DiskConfig{
		ThroughputMBps: 1,
		ChunkSizeKB:    16,
		Duration:       10 * time.Second,
		TestPath:       t.TempDir(),
	}))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(DiskConfig{TestPath: t.TempDir()}), ErrAlreadyRunning)
}

func TestAlignedBuffer(t *testing.T) {
	buf := alignedBuffer(16 * 1024)
	assert.Len(t, buf, 16*1024)
	assert.Zero(t, uintptr(addrOf(buf))%directIOAlignment)
}
