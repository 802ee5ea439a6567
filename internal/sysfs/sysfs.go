// Package sysfs reads and writes the per-core cpufreq and hotplug
// files under /sys/devices/system/cpu. The root is configurable so
// tests can run against a fake tree.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

const DefaultRoot = "/sys/devices/system/cpu"

type FS struct {
	root string
}

func New(root string) *FS {
	if root == "" {
		root = DefaultRoot
	}
	return &FS{root: root}
}

func (f *FS) Root() string {
	return f.root
}

// CoreCount counts cpuN directories under the root. Falls back to the
// runtime's CPU count when the tree is unreadable.
func (f *FS) CoreCount() int {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return runtime.NumCPU()
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(name, "cpu")); err != nil {
			continue
		}
		count++
	}
	if count == 0 {
		return runtime.NumCPU()
	}
	return count
}

func (f *FS) corePath(cpu int, rel string) string {
	return filepath.Join(f.root, fmt.Sprintf("cpu%d", cpu), rel)
}

func (f *FS) readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("%s: empty", path)
	}
	return s, nil
}

func (f *FS) readInt(path string) (int64, error) {
	s, err := f.readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func (f *FS) writeString(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

// MaxFreqPath is the scaling_max_freq path for a core, used by callers
// that save and replay raw path/value pairs.
func (f *FS) MaxFreqPath(cpu int) string {
	return f.corePath(cpu, "cpufreq/scaling_max_freq")
}

func (f *FS) GovernorPath(cpu int) string {
	return f.corePath(cpu, "cpufreq/scaling_governor")
}

func (f *FS) OnlinePath(cpu int) string {
	return f.corePath(cpu, "online")
}

func (f *FS) ScalingMaxFreq(cpu int) (int64, error) {
	return f.readInt(f.MaxFreqPath(cpu))
}

func (f *FS) SetScalingMaxFreq(cpu int, khz int64) error {
	return f.writeString(f.MaxFreqPath(cpu), strconv.FormatInt(khz, 10))
}

func (f *FS) HardwareMaxFreq(cpu int) (int64, error) {
	return f.readInt(f.corePath(cpu, "cpufreq/cpuinfo_max_freq"))
}

func (f *FS) HardwareMinFreq(cpu int) (int64, error) {
	return f.readInt(f.corePath(cpu, "cpufreq/cpuinfo_min_freq"))
}

// CurrentFreq prefers scaling_cur_freq; some platforms only expose the
// firmware-reported cpuinfo_cur_freq.
func (f *FS) CurrentFreq(cpu int) (int64, error) {
	khz, err := f.readInt(f.corePath(cpu, "cpufreq/scaling_cur_freq"))
	if err == nil && khz > 0 {
		return khz, nil
	}
	return f.readInt(f.corePath(cpu, "cpufreq/cpuinfo_cur_freq"))
}

func (f *FS) Governor(cpu int) (string, error) {
	return f.readString(f.GovernorPath(cpu))
}

func (f *FS) SetGovernor(cpu int, governor string) error {
	return f.writeString(f.GovernorPath(cpu), governor)
}

// IsOnline reports whether a core is online. Core 0 has no online file
// on most kernels and is always online.
func (f *FS) IsOnline(cpu int) bool {
	if cpu == 0 {
		return true
	}
	s, err := f.readString(f.OnlinePath(cpu))
	if err != nil {
		return false
	}
	return strings.Contains(s, "1")
}

// SetOnline writes a core's hotplug state. Writing core 0 is a no-op:
// the platform requires it to stay online.
func (f *FS) SetOnline(cpu int, online bool) error {
	if cpu == 0 {
		return nil
	}
	v := "0"
	if online {
		v = "1"
	}
	return f.writeString(f.OnlinePath(cpu), v)
}

// AvailableFrequencies returns the sorted scaling_available_frequencies
// list for a core. Missing file (common on intel_pstate) yields nil.
func (f *FS) AvailableFrequencies(cpu int) []int64 {
	s, err := f.readString(f.corePath(cpu, "cpufreq/scaling_available_frequencies"))
	if err != nil {
		return nil
	}

	var freqs []int64
	for _, field := range strings.Fields(s) {
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		freqs = append(freqs, v)
	}
	sort.Slice(freqs, func(i, j int) bool { return freqs[i] < freqs[j] })
	return freqs
}

// ReplayRaw writes a previously saved path/value pair back verbatim.
func (f *FS) ReplayRaw(path, value string) error {
	return f.writeString(path, value)
}
