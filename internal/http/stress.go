package http

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tomek7667/stressd/internal/stress"
)

const defaultStressDuration = 300_000 * time.Millisecond

func (s *Server) addStressRoutes() {
	s.r.Get("/api/stress/status", s.stressStatus)
	s.r.Post("/api/stress/cpu/start", s.startCPU)
	s.r.Post("/api/stress/memory/start", s.startMemory)
	s.r.Post("/api/stress/disk/start", s.startDisk)
	s.r.Post("/api/stress/network/start", s.startNetwork)
	s.r.Post("/api/stress/thermal/start", s.startThermal)
	s.r.Post("/api/stress/cpu/stop", stopHandler(s.coordinator.StopCPU, "CPU"))
	s.r.Post("/api/stress/memory/stop", stopHandler(s.coordinator.StopMemory, "memory"))
	s.r.Post("/api/stress/disk/stop", stopHandler(s.coordinator.StopDisk, "disk"))
	s.r.Post("/api/stress/network/stop", stopHandler(s.coordinator.StopNetwork, "network"))
	s.r.Post("/api/stress/thermal/stop", stopHandler(s.coordinator.StopThermal, "thermal"))
	s.r.Post("/api/stress/stop-all", s.stopAll)
}

func (s *Server) stressStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, s.coordinator.AllStatus())
}

type cpuStartRequest struct {
	ThreadCount    int   `json:"threadCount"`
	LoadPercentage int   `json:"loadPercentage"`
	DurationMs     int64 `json:"durationMs"`
	PinToCores     bool  `json:"pinToCores"`
	TargetCores    []int `json:"targetCores"`
}

func (s *Server) startCPU(w http.ResponseWriter, r *http.Request) {
	req := cpuStartRequest{
		ThreadCount:    4,
		LoadPercentage: 100,
		DurationMs:     defaultStressDuration.Milliseconds(),
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := stress.CPUConfig{
		ThreadCount: req.ThreadCount,
		LoadPercent: req.LoadPercentage,
		Duration:    time.Duration(req.DurationMs) * time.Millisecond,
		PinToCores:  req.PinToCores,
		TargetCores: req.TargetCores,
	}
	if err := s.coordinator.StartCPU(cfg); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondMessage(w, "CPU stress started")
}

type memoryStartRequest struct {
	TargetFreeMB     int   `json:"targetFreeMB"`
	ChunkSizeMB      int   `json:"chunkSizeMB"`
	DurationMs       int64 `json:"durationMs"`
	UseAnonymousMmap bool  `json:"useAnonymousMmap"`
	LockMemory       bool  `json:"lockMemory"`
}

func (s *Server) startMemory(w http.ResponseWriter, r *http.Request) {
	req := memoryStartRequest{
		TargetFreeMB:     100,
		ChunkSizeMB:      10,
		DurationMs:       defaultStressDuration.Milliseconds(),
		UseAnonymousMmap: true,
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := stress.MemoryConfig{
		TargetFreeMB:     req.TargetFreeMB,
		ChunkSizeMB:      req.ChunkSizeMB,
		Duration:         time.Duration(req.DurationMs) * time.Millisecond,
		UseAnonymousMmap: req.UseAnonymousMmap,
		LockMemory:       req.LockMemory,
	}
	if err := s.coordinator.StartMemory(cfg); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondMessage(w, "memory stress started")
}

type diskStartRequest struct {
	ThroughputMBps int    `json:"throughputMBps"`
	ChunkSizeKB    int    `json:"chunkSizeKB"`
	DurationMs     int64  `json:"durationMs"`
	UseDirectIO    bool   `json:"useDirectIO"`
	SyncWrites     bool   `json:"syncWrites"`
	TestPath       string `json:"testPath"`
}

func (s *Server) startDisk(w http.ResponseWriter, r *http.Request) {
	defaultPath := s.diskPath
	if defaultPath == "" {
		defaultPath = filepath.Join(os.TempDir(), "stressd_io")
	}
	req := diskStartRequest{
		ThroughputMBps: 5,
		ChunkSizeKB:    100,
		DurationMs:     defaultStressDuration.Milliseconds(),
		TestPath:       defaultPath,
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := stress.DiskConfig{
		ThroughputMBps: req.ThroughputMBps,
		ChunkSizeKB:    req.ChunkSizeKB,
		Duration:       time.Duration(req.DurationMs) * time.Millisecond,
		TestPath:       req.TestPath,
		UseDirectIO:    req.UseDirectIO,
		SyncWrites:     req.SyncWrites,
	}
	if err := s.coordinator.StartDisk(cfg); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondMessage(w, "disk stress started")
}

type networkStartRequest struct {
	BandwidthLimitKbps int    `json:"bandwidthLimitKbps"`
	LatencyMs          int    `json:"latencyMs"`
	PacketLossPercent  int    `json:"packetLossPercent"`
	DurationMs         int64  `json:"durationMs"`
	TargetInterface    string `json:"targetInterface"`
}

func (s *Server) startNetwork(w http.ResponseWriter, r *http.Request) {
	req := networkStartRequest{
		DurationMs:      defaultStressDuration.Milliseconds(),
		TargetInterface: "wlan0",
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := stress.NetworkConfig{
		BandwidthLimitKbps: req.BandwidthLimitKbps,
		LatencyMs:          req.LatencyMs,
		PacketLossPercent:  req.PacketLossPercent,
		Duration:           time.Duration(req.DurationMs) * time.Millisecond,
		TargetInterface:    req.TargetInterface,
	}
	if err := s.coordinator.StartNetwork(cfg); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondMessage(w, "network stress started")
}

type thermalStartRequest struct {
	MaxFrequencyPercent int   `json:"maxFrequencyPercent"`
	ForceAllCoresOnline bool  `json:"forceAllCoresOnline"`
	DurationMs          int64 `json:"durationMs"`
}

func (s *Server) startThermal(w http.ResponseWriter, r *http.Request) {
	req := thermalStartRequest{
		MaxFrequencyPercent: 100,
		ForceAllCoresOnline: true,
		DurationMs:          defaultStressDuration.Milliseconds(),
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := stress.ThermalConfig{
		MaxFrequencyPercent: req.MaxFrequencyPercent,
		ForceAllCoresOnline: req.ForceAllCoresOnline,
		Duration:            time.Duration(req.DurationMs) * time.Millisecond,
	}
	if err := s.coordinator.StartThermal(cfg); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondMessage(w, "thermal stress started")
}

func stopHandler(stop func(), label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop()
		respondMessage(w, label+" stress stopped")
	}
}

func (s *Server) stopAll(w http.ResponseWriter, r *http.Request) {
	s.coordinator.StopAll()
	respondMessage(w, "all stress stopped")
}
