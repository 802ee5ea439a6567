package stress

import (
	"log"
	"sync"

	"github.com/tomek7667/stressd/internal/cpufreq"
	"github.com/tomek7667/stressd/internal/sysfs"
)

// Coordinator owns one stressor of each kind plus the frequency
// governor. The mutex covers dispatch only; background execution runs
// outside it so status queries stay responsive during a run.
type Coordinator struct {
	mu sync.Mutex

	cpu     *CPUStressor
	memory  *MemoryStressor
	disk    *DiskStressor
	network *NetworkStressor
	thermal *ThermalStressor

	governor *cpufreq.Governor
}

func NewCoordinator(fs *sysfs.FS) *Coordinator {
	return &Coordinator{
		cpu:      NewCPUStressor(),
		memory:   NewMemoryStressor(),
		disk:     NewDiskStressor(),
		network:  NewNetworkStressor(),
		thermal:  NewThermalStressor(fs),
		governor: cpufreq.NewGovernor(fs),
	}
}

func (c *Coordinator) StartCPU(cfg CPUConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpu.Start(cfg)
}

func (c *Coordinator) StopCPU() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cpu.Stop()
}

func (c *Coordinator) StartMemory(cfg MemoryConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory.Start(cfg)
}

func (c *Coordinator) StopMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory.Stop()
}

func (c *Coordinator) StartDisk(cfg DiskConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disk.Start(cfg)
}

func (c *Coordinator) StopDisk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disk.Stop()
}

func (c *Coordinator) StartNetwork(cfg NetworkConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network.Start(cfg)
}

func (c *Coordinator) StopNetwork() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network.Stop()
}

func (c *Coordinator) StartThermal(cfg ThermalConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thermal.Start(cfg)
}

func (c *Coordinator) StopThermal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thermal.Stop()
}

// StopAll stops every kind unconditionally; already-idle stressors are
// no-ops.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Printf("stopping all stress runs")
	c.cpu.Stop()
	c.memory.Stop()
	c.disk.Stop()
	c.network.Stop()
	c.thermal.Stop()
}

func (c *Coordinator) IsAnyRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.stressors() {
		if s.IsRunning() {
			return true
		}
	}
	return false
}

func (c *Coordinator) stressors() []Stressor {
	return []Stressor{c.cpu, c.memory, c.disk, c.network, c.thermal}
}

// AllStatus aggregates every kind's live status, keyed by kind.
func (c *Coordinator) AllStatus() map[Kind]Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make(map[Kind]Status, 5)
	for _, s := range c.stressors() {
		all[s.Kind()] = s.Status()
	}
	return all
}

func (c *Coordinator) SetFrequency(khz int64, cores []int, autoRestoreMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.governor.SetMaxFrequency(khz, cores, autoRestoreMs)
}

func (c *Coordinator) RestoreFrequency() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.governor.Restore()
}

func (c *Coordinator) FrequencyStatus() cpufreq.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.governor.Status()
}

// Close guarantees nothing outlives the daemon: all runs stopped (which
// releases allocations, temp files and shaping rules) and the governor
// restored.
func (c *Coordinator) Close() {
	c.StopAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.governor.Restore()
}
