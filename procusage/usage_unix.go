//go:build !windows

package procusage

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

// Stat returns the resource usage of pid as reported by ps.
func Stat(ctx context.Context, pid int) (*ResourceUsage, error) {
	out, err := exec.CommandContext(ctx, "ps", "-o", "pcpu=,pmem=,rss=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil, &StatError{Pid: pid, Err: err}
	}
	u, err := parse(string(out))
	if err != nil {
		return nil, &StatError{Pid: pid, Err: err}
	}
	return u, nil
}

// parse reads the "pcpu pmem rss" line printed by ps, where rss is in
// kilobytes.
func parse(out string) (*ResourceUsage, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, errors.New("no output from ps")
	}
	if len(fields) != 3 {
		return nil, errors.New("wrong number of fields in ps output")
	}
	cpu, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, err
	}
	mem, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, err
	}
	rss, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, err
	}
	return &ResourceUsage{
		CPU:      cpu,
		Memory:   mem,
		Resident: rss * 1000,
	}, nil
}
