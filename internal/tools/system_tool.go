package tools

import (
	"context"
)

func systemInfoDefinition() Definition {
	return Definition{
		Name:        "system_info",
		Description: "Report host resource usage: CPU, memory, load average and uptime.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (r *Registry) handleSystemInfo(ctx context.Context, call Call) (map[string]any, error) {
	snap := r.mon.Read(ctx)
	return map[string]any{
		"status":            "success",
		"platform":          snap.Platform,
		"os":                snap.OS,
		"hostname":          snap.Hostname,
		"uptime_seconds":    snap.UptimeSeconds,
		"cpu_usage_percent": snap.CPUUsagePercent,
		"cpu_cores":         snap.CPUCores,
		"load_average":      snap.LoadAverage,
		"memory_total":      snap.MemoryTotal,
		"memory_used":       snap.MemoryUsed,
		"memory_percent":    snap.MemoryPercent,
	}, nil
}
