package http

type ResourcesSnapshot struct {
	HostIP    string         `json:"hostIp"`
	Board     string         `json:"board,omitempty"`
	UpdatedAt int64          `json:"updatedAt"`
	CPU       CPUStats       `json:"cpu"`
	Memory    MemoryStats    `json:"memory"`
	Disks     []DiskStats    `json:"disks"`
	Processes int            `json:"processes"`
	History   []HistoryPoint `json:"history,omitempty"`
	Errors    SnapshotError  `json:"errors"`
}

type SnapshotError struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	Disks  string `json:"disks"`
	HostIP string `json:"hostIp"`
}

type CPUStats struct {
	Percent             float64    `json:"percent"`
	Model               string     `json:"model"`
	PhysicalCores       int        `json:"physicalCores"`
	LogicalCores        int        `json:"logicalCores"`
	OnlineCores         int        `json:"onlineCores"`
	CurrentMHz          float64    `json:"currentMHz"`
	MaxMHz              float64    `json:"maxMHz"`
	CurrentPercentOfMax float64    `json:"currentPercentOfMax"`
	TemperatureC        *float64   `json:"temperatureC,omitempty"`
	Cores               []CoreFreq `json:"cores,omitempty"`
}

// CoreFreq is the per-core frequency view an operator watches while a
// frequency limit or thermal run is active.
type CoreFreq struct {
	Core          int   `json:"core"`
	Online        bool  `json:"online"`
	CurrentKHz    int64 `json:"currentKHz"`
	ScalingMaxKHz int64 `json:"scalingMaxKHz"`
	HardwareMax   int64 `json:"hardwareMaxKHz"`
}

type MemoryStats struct {
	TotalBytes      uint64             `json:"totalBytes"`
	AvailableBytes  uint64             `json:"availableBytes"`
	UsedBytes       uint64             `json:"usedBytes"`
	UsedPercent     float64            `json:"usedPercent"`
	SwapTotalBytes  uint64             `json:"swapTotalBytes"`
	SwapUsedBytes   uint64             `json:"swapUsedBytes"`
	SwapUsedPercent float64            `json:"swapUsedPercent"`
	Modules         []MemoryModuleInfo `json:"modules,omitempty"`
	SwapDevices     []SwapDeviceStats  `json:"swapDevices,omitempty"`
}

type MemoryModuleInfo struct {
	Label     string `json:"label"`
	Vendor    string `json:"vendor"`
	SizeBytes uint64 `json:"sizeBytes"`
}

type SwapDeviceStats struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	SizeBytes uint64 `json:"sizeBytes"`
	UsedBytes uint64 `json:"usedBytes"`
}

type DiskStats struct {
	Mountpoint  string  `json:"mountpoint"`
	Device      string  `json:"device"`
	Filesystem  string  `json:"filesystem"`
	DriveType   string  `json:"driveType"`
	Model       string  `json:"model"`
	TotalBytes  uint64  `json:"totalBytes"`
	UsedBytes   uint64  `json:"usedBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

type HistoryPoint struct {
	Time    int64              `json:"time"`
	CPU     float64            `json:"cpu"`
	Mem     float64            `json:"mem"`
	FreqPct float64            `json:"freqPct,omitempty"`
	Disks   map[string]float64 `json:"disks,omitempty"`
}

type diskMeta struct {
	DriveType         string
	StorageController string
	Model             string
}
