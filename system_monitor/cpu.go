package systemmonitor

import (
	"strconv"
	"strings"
)

type cpuTimeStat struct {
	user      int
	system    int
	idle      int
	nice      int
	iowait    int
	irq       int
	softIrq   int
	steal     int
	guest     int
	guestNice int
}

func (ts *cpuTimeStat) totalCPUTime() int {
	return ts.user + ts.system + ts.nice + ts.iowait + ts.irq + ts.softIrq + ts.steal + ts.idle
}

func parseCPUTimeStat(buf []byte) *cpuTimeStat {
	for _, line := range strings.Split(string(buf), "\n") {
		// only the aggregate line, not per-core lines
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 11 {
			return nil
		}
		values := make([]int, 10)
		for i := range values {
			values[i], _ = strconv.Atoi(parts[i+1])
		}
		return &cpuTimeStat{
			user:      values[0],
			nice:      values[1],
			system:    values[2],
			idle:      values[3],
			iowait:    values[4],
			irq:       values[5],
			softIrq:   values[6],
			steal:     values[7],
			guest:     values[8],
			guestNice: values[9],
		}
	}
	return nil
}

type cpuUsage struct {
	user   float64
	system float64
	idle   float64
	iowait float64
}

// cpuUsageBetween returns percentages of CPU time spent between two samples, or nil if there is nothing to compare.
func cpuUsageBetween(prev, curr *cpuTimeStat) *cpuUsage {
	if prev == nil || curr == nil {
		return nil
	}
	delta := float64(curr.totalCPUTime() - prev.totalCPUTime())
	if delta <= 0 {
		return nil
	}
	return &cpuUsage{
		user:   float64(100*(curr.user-prev.user-(curr.guest-prev.guest))) / delta,
		system: float64(100*(curr.system-prev.system)) / delta,
		idle:   float64(100*(curr.idle-prev.idle)) / delta,
		iowait: float64(100*(curr.iowait-prev.iowait)) / delta,
	}
}
