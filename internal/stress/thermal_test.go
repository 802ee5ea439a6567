package stress

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomek7667/stressd/internal/sysfs"
)

func newFakeSysfs(t *testing.T, cores int, offline ...int) *sysfs.FS {
	t.Helper()
	root := t.TempDir()

	offlineSet := map[int]struct{}{}
	for _, cpu := range offline {
		offlineSet[cpu] = struct{}{}
	}

	for cpu := 0; cpu < cores; cpu++ {
		dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "cpufreq")
		require.NoError(t, os.MkdirAll(dir, 0o755))

		files := map[string]string{
			"cpuinfo_max_freq": "2000000",
			"cpuinfo_min_freq": "500000",
			"scaling_max_freq": "2000000",
			"scaling_cur_freq": "1500000",
			"scaling_governor": "schedutil",
		}
		for name, value := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644))
		}

		if cpu > 0 {
			state := "1"
			if _, off := offlineSet[cpu]; off {
				state = "0"
			}
			require.NoError(t, os.WriteFile(filepath.Join(root, "cpu"+strconv.Itoa(cpu), "online"), []byte(state+"\n"), 0o644))
		}
	}

	return sysfs.New(root)
}

func TestThermalStressorAppliesAndRestores(t *testing.T) {
	fs := newFakeSysfs(t, 4, 2)
	s := NewThermalStressor(fs)

	require.NoError(t, s.Start(ThermalConfig{
		MaxFrequencyPercent: 50,
		ForceAllCoresOnline: true,
		Duration:            10 * time.Second,
	}))

	// apply runs in the worker goroutine.
	require.Eventually(t, func() bool {
		gov, err := fs.Governor(0)
		return err == nil && gov == "performance"
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, fs.IsOnline(2), "offline core must be forced online")

	// 50% of the 500000..2000000 range.
	for cpu := 0; cpu < 4; cpu++ {
		khz, err := fs.ScalingMaxFreq(cpu)
		require.NoError(t, err)
		assert.Equal(t, int64(1250000), khz, "cpu%d", cpu)

		gov, err := fs.Governor(cpu)
		require.NoError(t, err)
		assert.Equal(t, "performance", gov, "cpu%d", cpu)
	}

	s.Stop()
	assert.False(t, s.IsRunning())

	for cpu := 0; cpu < 4; cpu++ {
		khz, err := fs.ScalingMaxFreq(cpu)
		require.NoError(t, err)
		assert.Equal(t, int64(2000000), khz, "cpu%d", cpu)

		gov, err := fs.Governor(cpu)
		require.NoError(t, err)
		assert.Equal(t, "schedutil", gov, "cpu%d", cpu)
	}
	assert.False(t, fs.IsOnline(2), "core must return to its saved offline state")
	assert.True(t, fs.IsOnline(1))
}

func TestThermalStressorFullPercentLeavesFrequencyAlone(t *testing.T) {
	fs := newFakeSysfs(t, 2)
	s := NewThermalStressor(fs)

	require.NoError(t, s.Start(ThermalConfig{
		MaxFrequencyPercent: 100,
		ForceAllCoresOnline: false,
		Duration:            10 * time.Second,
	}))

	require.Eventually(t, func() bool {
		gov, err := fs.Governor(0)
		return err == nil && gov == "performance"
	}, 2*time.Second, 10*time.Millisecond)

	khz, err := fs.ScalingMaxFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), khz)

	s.Stop()
}

func TestThermalStressorReOnlinesSleepingCores(t *testing.T) {
	fs := newFakeSysfs(t, 2)
	s := NewThermalStressor(fs)

	require.NoError(t, s.Start(ThermalConfig{
		MaxFrequencyPercent: 100,
		ForceAllCoresOnline: true,
		Duration:            10 * time.Second,
	}))
	defer s.Stop()

	require.Eventually(t, func() bool {
		gov, err := fs.Governor(0)
		return err == nil && gov == "performance"
	}, 2*time.Second, 10*time.Millisecond)

	// Platform hotplugs the core back to sleep mid-run; the monitor
	// loop's next pass forces it online again.
	require.NoError(t, fs.SetOnline(1, false))
	require.Eventually(t, func() bool {
		return fs.IsOnline(1)
	}, 3*time.Second, 50*time.Millisecond)
}

func TestThermalStressorStatus(t *testing.T) {
	fs := newFakeSysfs(t, 4)
	s := NewThermalStressor(fs)

	require.NoError(t, s.Start(ThermalConfig{
		MaxFrequencyPercent: 80,
		ForceAllCoresOnline: true,
		Duration:            10 * time.Second,
	}))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.Status().Data["onlineCores"] == "4"
	}, 3*time.Second, 50*time.Millisecond)

	status := s.Status()
	assert.Equal(t, KindThermal, status.Kind)
	assert.Equal(t, "4", status.Data["totalCores"])
	assert.Equal(t, "80", status.Data["maxFrequencyPercent"])
	assert.Equal(t, "true", status.Data["forceAllCoresOnline"])
}
