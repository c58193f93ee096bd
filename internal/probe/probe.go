// Package probe provides sample sources for sensors.
//
// A probe is a zero-argument function returning the next sample value.
// Probes are swappable collaborators: OS metric readers backed by /proc,
// a random walk for simulations, and an SNMP gauge reader for remote
// devices.
package probe

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/tkarlsson/sensord/internal/message"
)

// Func produces the next sample value for a sensor tick.
type Func func() (message.Data, error)

// New returns a probe by its config name.
func New(kind string) (Func, error) {
	switch kind {
	case "load":
		return LoadAverage, nil
	case "loadvec":
		return LoadAverages, nil
	case "mem":
		return MemoryAvailable, nil
	case "cpu":
		return NewCPUUtilization(), nil
	case "random":
		return NewRandomWalk(0), nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", kind)
	}
}

// LoadAverage returns the 1-minute load average.
func LoadAverage() (message.Data, error) {
	vals, err := readLoadAvg()
	if err != nil {
		return message.Data{}, err
	}
	return message.Scalar(vals[0]), nil
}

// LoadAverages returns the 1, 5 and 15 minute load averages as a vector.
func LoadAverages() (message.Data, error) {
	vals, err := readLoadAvg()
	if err != nil {
		return message.Data{}, err
	}
	return message.Vector(vals), nil
}

func readLoadAvg() ([]float64, error) {
	b, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(b))
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed /proc/loadavg")
	}
	vals := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// MemoryAvailable returns available memory in gigabytes.
func MemoryAvailable() (message.Data, error) {
	b, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return message.Data{}, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return message.Data{}, err
		}
		return message.Scalar(kb * 1e-6), nil
	}
	return message.Data{}, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}

// NewCPUUtilization returns a probe reporting CPU busy percentage since the
// previous tick. The first tick reports utilization since boot.
func NewCPUUtilization() Func {
	var prevBusy, prevTotal float64

	return func() (message.Data, error) {
		busy, total, err := readCPUStat()
		if err != nil {
			return message.Data{}, err
		}

		dBusy := busy - prevBusy
		dTotal := total - prevTotal
		prevBusy, prevTotal = busy, total

		if dTotal <= 0 {
			return message.Scalar(0), nil
		}
		return message.Scalar(100 * dBusy / dTotal), nil
	}
}

func readCPUStat() (busy, total float64, err error) {
	b, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("malformed /proc/stat")
	}
	for i, f := range fields[1:] {
		v, perr := strconv.ParseFloat(f, 64)
		if perr != nil {
			return 0, 0, perr
		}
		total += v
		// Fields 4 and 5 are idle and iowait.
		if i != 3 && i != 4 {
			busy += v
		}
	}
	return busy, total, nil
}

// NewRandomWalk returns a probe producing a bounded random walk starting at
// start. Useful for simulations and demos without OS dependencies.
func NewRandomWalk(start float64) Func {
	v := start
	return func() (message.Data, error) {
		v += rand.Float64() - 0.5
		return message.Scalar(v), nil
	}
}
