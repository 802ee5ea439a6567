package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeTree(t *testing.T, cores int) *FS {
	t.Helper()
	root := t.TempDir()

	for cpu := 0; cpu < cores; cpu++ {
		dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "cpufreq")
		require.NoError(t, os.MkdirAll(dir, 0o755))

		files := map[string]string{
			"cpuinfo_max_freq":              "2000000",
			"cpuinfo_min_freq":              "500000",
			"scaling_max_freq":              "2000000",
			"scaling_cur_freq":              "1800000",
			"scaling_governor":              "schedutil",
			"scaling_available_frequencies": "2000000 500000 1000000",
		}
		for name, value := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644))
		}
		if cpu > 0 {
			require.NoError(t, os.WriteFile(filepath.Join(root, "cpu"+strconv.Itoa(cpu), "online"), []byte("1\n"), 0o644))
		}
	}

	// Directories the kernel also puts under the cpu root; CoreCount
	// must not count them.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpufreq"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpuidle"), 0o755))

	return New(root)
}

func TestCoreCount(t *testing.T) {
	fs := writeFakeTree(t, 4)
	assert.Equal(t, 4, fs.CoreCount())
}

func TestScalingMaxFreqRoundTrip(t *testing.T) {
	fs := writeFakeTree(t, 2)

	khz, err := fs.ScalingMaxFreq(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), khz)

	require.NoError(t, fs.SetScalingMaxFreq(1, 1200000))
	khz, err = fs.ScalingMaxFreq(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), khz)
}

func TestGovernorRoundTrip(t *testing.T) {
	fs := writeFakeTree(t, 1)

	gov, err := fs.Governor(0)
	require.NoError(t, err)
	assert.Equal(t, "schedutil", gov)

	require.NoError(t, fs.SetGovernor(0, "performance"))
	gov, err = fs.Governor(0)
	require.NoError(t, err)
	assert.Equal(t, "performance", gov)
}

func TestOnlineCoreZeroRules(t *testing.T) {
	fs := writeFakeTree(t, 2)

	// Core 0 has no online file and is always reported online; writing
	// it is a no-op.
	assert.True(t, fs.IsOnline(0))
	assert.NoError(t, fs.SetOnline(0, false))
	assert.True(t, fs.IsOnline(0))

	assert.True(t, fs.IsOnline(1))
	require.NoError(t, fs.SetOnline(1, false))
	assert.False(t, fs.IsOnline(1))
	require.NoError(t, fs.SetOnline(1, true))
	assert.True(t, fs.IsOnline(1))
}

func TestAvailableFrequenciesSorted(t *testing.T) {
	fs := writeFakeTree(t, 1)
	assert.Equal(t, []int64{500000, 1000000, 2000000}, fs.AvailableFrequencies(0))
}

func TestAvailableFrequenciesMissingFile(t *testing.T) {
	fs := writeFakeTree(t, 1)
	require.NoError(t, os.Remove(filepath.Join(fs.Root(), "cpu0", "cpufreq", "scaling_available_frequencies")))
	assert.Nil(t, fs.AvailableFrequencies(0))
}

func TestCurrentFreqFallsBackToCpuinfo(t *testing.T) {
	fs := writeFakeTree(t, 1)
	dir := filepath.Join(fs.Root(), "cpu0", "cpufreq")

	khz, err := fs.CurrentFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1800000), khz)

	require.NoError(t, os.Remove(filepath.Join(dir, "scaling_cur_freq")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpuinfo_cur_freq"), []byte("900000\n"), 0o644))

	khz, err = fs.CurrentFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(900000), khz)
}

func TestReplayRaw(t *testing.T) {
	fs := writeFakeTree(t, 1)

	require.NoError(t, fs.SetScalingMaxFreq(0, 1000000))
	require.NoError(t, fs.ReplayRaw(fs.MaxFreqPath(0), "2000000"))

	khz, err := fs.ScalingMaxFreq(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), khz)
}
