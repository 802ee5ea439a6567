package http

import (
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

func (m *ResourceMonitor) sampleCPUPercent() (float64, error) {
	times, err := cpu.Times(false)
	if err != nil {
		return 0, err
	}
	if len(times) == 0 {
		return 0, nil
	}

	t := times[0]
	total := cpuTimesTotal(t)
	idle := t.Idle + t.Iowait

	if !m.havePrevCPU {
		m.prevTotal = total
		m.prevIdle = idle
		m.havePrevCPU = true
		return 0, nil
	}

	totalDelta := total - m.prevTotal
	idleDelta := idle - m.prevIdle

	m.prevTotal = total
	m.prevIdle = idle

	if totalDelta <= 0 {
		return 0, nil
	}

	usage := (totalDelta - idleDelta) / totalDelta * 100
	if usage < 0 {
		return 0, nil
	}
	if usage > 100 {
		return 100, nil
	}
	return usage, nil
}

func sampleCPUStaticInfo() (CPUStats, error) {
	stats := CPUStats{}
	var warnings []string

	info, err := cpu.Info()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cpu info: %v", err))
	} else if len(info) > 0 {
		stats.Model = strings.TrimSpace(info[0].ModelName)
	}

	physical, err := cpu.Counts(false)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cpu physical cores: %v", err))
	} else {
		stats.PhysicalCores = physical
	}

	logical, err := cpu.Counts(true)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cpu logical cores: %v", err))
	} else {
		stats.LogicalCores = logical
	}

	if len(warnings) > 0 {
		return stats, fmt.Errorf("%s", strings.Join(warnings, "; "))
	}
	return stats, nil
}

// sampleCPUTemperatureC picks the sensor that most plausibly reflects
// package temperature. Relevant while a thermal run is heating the SoC.
func sampleCPUTemperatureC() (*float64, error) {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return nil, err
	}

	var best *float64
	bestScore := -1
	bestTemp := -1.0

	for _, t := range temps {
		temp := t.Temperature
		if temp <= 0 || !isFiniteFloat(temp) {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(t.SensorKey))
		score := 0
		switch {
		case strings.Contains(key, "package"):
			score += 50
		case strings.Contains(key, "tctl") || strings.Contains(key, "tdie"):
			score += 40
		}
		if strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") {
			score += 20
		}
		if strings.Contains(key, "cpu") || strings.Contains(key, "soc") {
			score += 10
		}
		if strings.Contains(key, "core") {
			score += 5
		}

		if score > bestScore || (score == bestScore && temp > bestTemp) {
			v := temp
			best = &v
			bestScore = score
			bestTemp = temp
		}
	}

	return best, nil
}

func isFiniteFloat(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func cpuTimesTotal(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal + t.Guest + t.GuestNice
}

func isTemperatureUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not implemented") || strings.Contains(msg, "not supported")
}
