package http

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomek7667/stressd/internal/sysfs"
)

const (
	hardwareMetaTTL  = 30 * time.Second
	hostIPTTL        = 30 * time.Second
	cpuStaticTTL     = 1 * time.Minute
	disksSampleTTL   = 5 * time.Second
	historyMaxAge    = 30 * time.Minute
	historyMaxPoints = 2000
)

// ResourceMonitor samples the device once per second so stress runs can
// be observed without every poll hitting sysfs and ghw directly.
type ResourceMonitor struct {
	fs *sysfs.FS

	mu       sync.RWMutex
	snapshot ResourcesSnapshot

	// CPU percent is derived from deltas between successive samples.
	prevTotal   float64
	prevIdle    float64
	havePrevCPU bool

	memoryModules       []MemoryModuleInfo
	memoryModulesLoaded bool

	diskMeta          map[string]diskMeta
	diskMetaUpdatedAt time.Time

	hostIP          string
	hostIPUpdatedAt time.Time
	hostIPErr       error

	cpuStatic          CPUStats
	cpuStaticUpdatedAt time.Time
	cpuStaticErr       error

	disksCache     []DiskStats
	disksUpdatedAt time.Time
	disksErr       error

	boardModel         string
	boardModelResolved bool

	history []HistoryPoint
}

func NewResourceMonitor(fs *sysfs.FS) *ResourceMonitor {
	return &ResourceMonitor{
		fs:       fs,
		snapshot: ResourcesSnapshot{},
	}
}

func (m *ResourceMonitor) Start(stop <-chan struct{}) {
	m.update()
	ticker := time.NewTicker(1 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.update()
			}
		}
	}()
}

func (m *ResourceMonitor) Snapshot(includeHistory bool) ResourcesSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.Disks = append([]DiskStats(nil), m.snapshot.Disks...)
	snap.CPU.Cores = append([]CoreFreq(nil), m.snapshot.CPU.Cores...)
	if includeHistory {
		snap.History = cloneHistory(m.history)
	}
	return snap
}

func (m *ResourceMonitor) update() {
	now := time.Now()
	var errs SnapshotError

	if m.hostIP == "" || now.Sub(m.hostIPUpdatedAt) >= hostIPTTL {
		m.hostIP, m.hostIPErr = preferredHostIP()
		m.hostIPUpdatedAt = now
	}
	if m.hostIPErr != nil {
		errs.HostIP = m.hostIPErr.Error()
	}

	cpuPercent, cpuPercentErr := m.sampleCPUPercent()

	if m.cpuStaticUpdatedAt.IsZero() || now.Sub(m.cpuStaticUpdatedAt) >= cpuStaticTTL {
		m.cpuStatic, m.cpuStaticErr = sampleCPUStaticInfo()
		m.cpuStaticUpdatedAt = now
	}

	cpuStats := CPUStats{
		Percent:       cpuPercent,
		Model:         m.cpuStatic.Model,
		PhysicalCores: m.cpuStatic.PhysicalCores,
		LogicalCores:  m.cpuStatic.LogicalCores,
	}
	m.sampleCoreFreqs(&cpuStats)

	tempC, tempErr := sampleCPUTemperatureC()
	if tempErr == nil && tempC != nil {
		cpuStats.TemperatureC = tempC
	}

	var cpuErrs []string
	if cpuPercentErr != nil {
		cpuErrs = append(cpuErrs, cpuPercentErr.Error())
	}
	if m.cpuStaticErr != nil {
		cpuErrs = append(cpuErrs, m.cpuStaticErr.Error())
	}
	if tempErr != nil && !isTemperatureUnavailable(tempErr) {
		cpuErrs = append(cpuErrs, fmt.Sprintf("cpu temp: %v", tempErr))
	}
	if len(cpuErrs) > 0 {
		errs.CPU = strings.Join(cpuErrs, "; ")
	}

	memStats, err := m.sampleMemory()
	if err != nil {
		errs.Memory = err.Error()
	}

	if m.disksUpdatedAt.IsZero() || now.Sub(m.disksUpdatedAt) >= disksSampleTTL {
		disks, err := m.sampleDisks()
		if disks != nil || err == nil {
			m.disksCache = disks
		}
		m.disksErr = err
		m.disksUpdatedAt = now
	}
	if m.disksErr != nil {
		errs.Disks = m.disksErr.Error()
	}

	procCount, procErr := sampleProcessCount()
	if procErr != nil {
		errs.CPU = strings.TrimSpace(strings.Join([]string{errs.CPU, fmt.Sprintf("processes: %v", procErr)}, "; "))
	}

	snap := ResourcesSnapshot{
		HostIP:    m.hostIP,
		Board:     m.boardModelName(),
		UpdatedAt: now.UnixMilli(),
		CPU:       cpuStats,
		Memory:    memStats,
		Disks:     m.disksCache,
		Processes: procCount,
		Errors:    errs,
	}

	m.mu.Lock()
	m.snapshot = snap
	m.appendHistoryLocked(snap)
	m.mu.Unlock()
}

// sampleCoreFreqs reads per-core frequencies through the same sysfs
// layer the governor and thermal stressor write through, so an active
// limit shows up here immediately.
func (m *ResourceMonitor) sampleCoreFreqs(stats *CPUStats) {
	n := m.fs.CoreCount()
	var curSumKHz, curCount, hwMaxKHz int64

	for cpu := 0; cpu < n; cpu++ {
		cf := CoreFreq{Core: cpu, Online: m.fs.IsOnline(cpu)}
		if cf.Online {
			stats.OnlineCores++
		}
		if khz, err := m.fs.CurrentFreq(cpu); err == nil && khz > 0 {
			cf.CurrentKHz = khz
			curSumKHz += khz
			curCount++
		}
		if khz, err := m.fs.ScalingMaxFreq(cpu); err == nil {
			cf.ScalingMaxKHz = khz
		}
		if khz, err := m.fs.HardwareMaxFreq(cpu); err == nil {
			cf.HardwareMax = khz
			if khz > hwMaxKHz {
				hwMaxKHz = khz
			}
		}
		stats.Cores = append(stats.Cores, cf)
	}

	if curCount > 0 {
		stats.CurrentMHz = float64(curSumKHz) / float64(curCount) / 1000
	}
	stats.MaxMHz = float64(hwMaxKHz) / 1000
	if stats.MaxMHz > 0 && stats.CurrentMHz > 0 {
		stats.CurrentPercentOfMax = stats.CurrentMHz / stats.MaxMHz * 100
	}
}

func (m *ResourceMonitor) appendHistoryLocked(snap ResourcesSnapshot) {
	hp := HistoryPoint{
		Time:    snap.UpdatedAt,
		CPU:     snap.CPU.Percent,
		Mem:     snap.Memory.UsedPercent,
		FreqPct: snap.CPU.CurrentPercentOfMax,
	}

	for _, d := range snap.Disks {
		if d.Mountpoint == "" {
			continue
		}
		if hp.Disks == nil {
			hp.Disks = make(map[string]float64)
		}
		hp.Disks[d.Mountpoint] = d.UsedPercent
	}

	m.history = append(m.history, hp)

	cutoff := snap.UpdatedAt - int64(historyMaxAge/time.Millisecond)
	trim := 0
	for trim < len(m.history) && m.history[trim].Time < cutoff {
		trim++
	}
	if trim > 0 {
		m.history = append([]HistoryPoint(nil), m.history[trim:]...)
	}
	if len(m.history) > historyMaxPoints {
		m.history = append([]HistoryPoint(nil), m.history[len(m.history)-historyMaxPoints:]...)
	}
}
