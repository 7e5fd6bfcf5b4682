// Package performance provides process resource monitoring for Stockpile.
// Bundle payloads live on the heap, so operators sizing pools and the hot
// payload store need visibility into what the process actually consumes.
package performance

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is a point-in-time snapshot of process and system load.
type ResourceUsage struct {
	CPUPercent            float64 `json:"cpu_percent"`
	MemoryRSS             uint64  `json:"memory_rss"`
	MemoryVMS             uint64  `json:"memory_vms"`
	HeapAllocMB           uint64  `json:"heap_alloc_mb"`
	SystemMemoryPercent   float64 `json:"system_memory_percent"`
	SystemMemoryAvailable uint64  `json:"system_memory_available"`
	SystemCPUPercent      float64 `json:"system_cpu_percent"`
	GoroutineCount        int     `json:"goroutine_count"`
	ThreadCount           int32   `json:"thread_count"`
	OpenFDs               int32   `json:"open_fds"`
	GCCount               uint32  `json:"gc_count"`
	UptimeSeconds         float64 `json:"uptime_seconds"`
}

// ResourceMonitor samples this process's resource usage.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.RWMutex
}

// NewResourceMonitor creates a monitor bound to the current process.
func NewResourceMonitor() *ResourceMonitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	rm := &ResourceMonitor{
		process:   proc,
		startTime: time.Now(),
	}
	if proc != nil {
		if cpuTime, err := proc.Times(); err == nil {
			rm.startCPUTime = cpuTime.Total()
		}
	}
	return rm
}

// Usage returns the current resource usage. Individual probes that fail
// leave their fields zero rather than failing the whole snapshot.
func (rm *ResourceMonitor) Usage() *ResourceUsage {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	usage := &ResourceUsage{
		GoroutineCount: runtime.NumGoroutine(),
		UptimeSeconds:  time.Since(rm.startTime).Seconds(),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	usage.HeapAllocMB = memStats.HeapAlloc / 1024 / 1024
	usage.GCCount = memStats.NumGC

	if rm.process != nil {
		if cpuTime, err := rm.process.Times(); err == nil {
			elapsed := time.Since(rm.startTime).Seconds()
			if elapsed > 0 {
				usage.CPUPercent = ((cpuTime.Total() - rm.startCPUTime) / elapsed) * 100
			}
		}
		if memInfo, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
			usage.MemoryVMS = memInfo.VMS
		}
		usage.ThreadCount, _ = rm.process.NumThreads()
		usage.OpenFDs, _ = rm.process.NumFDs()
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		usage.SystemCPUPercent = cpuPercent[0]
	}

	return usage
}
