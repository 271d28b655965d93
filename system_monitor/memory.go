package systemmonitor

import (
	"strconv"
	"strings"
)

type memUsage struct {
	usedBytes    int
	usedPct      float64
	availablePct float64
}

func parseMemInfo(buf []byte) *memUsage {
	total := 0
	free := 0
	buffers := 0
	cached := 0
	available := 0

	for _, line := range strings.Split(string(buf), "\n") {
		parts := strings.Fields(line)
		if len(parts) != 3 {
			continue
		}
		value, _ := strconv.Atoi(parts[1])
		bytes := value * 1024
		switch key := strings.TrimSuffix(parts[0], ":"); key {
		case "MemTotal":
			total = bytes
		case "MemFree":
			free = bytes
		case "MemAvailable":
			available = bytes
		case "Buffers":
			buffers = bytes
		case "Cached":
			cached += bytes
		case "SReclaimable":
			cached += bytes
		}
	}
	if total == 0 {
		return nil
	}

	used := total - free - buffers - cached
	return &memUsage{
		usedBytes:    used,
		usedPct:      100 * (float64(used) / float64(total)),
		availablePct: 100 * (float64(available) / float64(total)),
	}
}
