// Package sysinfo reports host and accelerator resource usage for the
// /info endpoint. Informational only; never consulted for admission.
package sysinfo

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

const bytesPerGB = 1 << 30

// Info holds a snapshot of system resources.
type Info struct {
	CPUUsagePercent   float64 `json:"cpu_usage"`
	AvailableMemoryGB float64 `json:"available_memory"`
	TotalMemoryGB     float64 `json:"total_memory"`
	Device            string  `json:"device,omitempty"`
	TotalVRAMGB       float64 `json:"total_vram,omitempty"`
	UsedVRAMGB        float64 `json:"used_vram,omitempty"`
}

// Collect gathers CPU and memory usage from the host, and accelerator
// stats from the inference sidecar when it is reachable. Partial data is
// returned rather than an error; the endpoint stays useful when the
// sidecar is down.
func Collect(ctx context.Context, pipe pipeline.Client, logger *slog.Logger) Info {
	if logger == nil {
		logger = slog.Default()
	}
	var info Info

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		info.CPUUsagePercent = percents[0]
	} else if err != nil {
		logger.Warn("could not read CPU usage", slog.String("error", err.Error()))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.AvailableMemoryGB = float64(vm.Available) / bytesPerGB
		info.TotalMemoryGB = float64(vm.Total) / bytesPerGB
	} else {
		logger.Warn("could not read memory stats", slog.String("error", err.Error()))
	}

	if pipe != nil {
		if dev, err := pipe.Ping(ctx); err == nil {
			info.Device = dev.Device
			info.TotalVRAMGB = dev.TotalMemoryGB
			info.UsedVRAMGB = dev.UsedMemoryGB
		} else {
			logger.Warn("could not read accelerator stats", slog.String("error", err.Error()))
		}
	}

	return info
}
