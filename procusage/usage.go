// Package procusage reports the system resources used by a process.
package procusage

import (
	"fmt"
	"strconv"
)

// ResourceUsage is a point-in-time sample of what a process uses.
type ResourceUsage struct {
	// CPU is the percentage of one CPU in use.
	CPU float64 `json:"cpu"`
	// Memory is the percentage of physical memory in use.
	Memory float64 `json:"memory"`
	// Resident is the resident set size in bytes.
	Resident int `json:"resident"`
}

// HumanResident formats Resident with a decimal unit, such as "20.5MB".
func (r ResourceUsage) HumanResident() string {
	return humanBytes(r.Resident)
}

func (r ResourceUsage) String() string {
	return fmt.Sprintf("cpu %.1f%%, mem %s (%.1f%%)", r.CPU, r.HumanResident(), r.Memory)
}

// StatError is returned by Stat when the usage of a pid can't be sampled.
type StatError struct {
	Pid int
	Err error
}

func (e *StatError) Error() string {
	return "cannot sample pid " + strconv.Itoa(e.Pid) + ": " + e.Err.Error()
}

func (e *StatError) Unwrap() error {
	return e.Err
}

var units = []string{"B", "kB", "MB", "GB", "TB", "PB", "EB"}

func humanBytes(b int) string {
	if b < 1000 {
		return strconv.Itoa(b) + units[0]
	}
	v := float64(b)
	i := 0
	for v >= 1000 && i < len(units)-1 {
		v /= 1000
		i++
	}
	return fmt.Sprintf("%.1f%s", v, units[i])
}
