package nanobot

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Status describes the nanobot process and its host.
type Status struct {
	Running bool       `json:"running"`
	PID     *string    `json:"pid"`
	Uptime  string     `json:"uptime"`
	System  SystemInfo `json:"system"`
}

// SystemInfo is a coarse host summary.
type SystemInfo struct {
	OS     string      `json:"os"`
	Memory *MemoryInfo `json:"memory,omitempty"`
	Disk   *DiskInfo   `json:"disk,omitempty"`
	Python string      `json:"python"`
}

type MemoryInfo struct {
	Total string `json:"total"`
	Used  string `json:"used"`
	Free  string `json:"free"`
}

type DiskInfo struct {
	Total string `json:"total"`
	Used  string `json:"used"`
	Usage string `json:"usage"`
}

const (
	cmdPgrep  = "pgrep -f 'python.*nanobot' || true"
	cmdUptime = "uptime -p 2>/dev/null || uptime"
	cmdUname  = "uname -srm"
	cmdFree   = "free -h 2>/dev/null | grep Mem | awk '{print $2, $3, $4}'"
	cmdDisk   = "df -h / | tail -1 | awk '{print $2, $3, $5}'"
	cmdPython = "python3 --version 2>/dev/null || python --version 2>/dev/null"
)

// Status probes the process table and host facts. The probes run
// concurrently, each in its own SSH session.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	var pgrep, uptime, uname, free, disk, python string

	g, ctx := errgroup.WithContext(ctx)
	for _, probe := range []struct {
		cmd string
		out *string
	}{
		{cmdPgrep, &pgrep},
		{cmdUptime, &uptime},
		{cmdUname, &uname},
		{cmdFree, &free},
		{cmdDisk, &disk},
		{cmdPython, &python},
	} {
		g.Go(func() error {
			res, err := m.exec.Exec(ctx, probe.cmd)
			if err != nil {
				return err
			}
			*probe.out = strings.TrimSpace(res.Stdout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := &Status{
		Uptime: uptime,
		System: SystemInfo{OS: uname, Python: python},
	}
	for _, line := range strings.Split(pgrep, "\n") {
		if pid := strings.TrimSpace(line); pid != "" {
			st.Running = true
			st.PID = &pid
			break
		}
	}
	if free != "" {
		parts := fieldsOrUnknown(free, 3)
		st.System.Memory = &MemoryInfo{Total: parts[0], Used: parts[1], Free: parts[2]}
	}
	if disk != "" {
		parts := fieldsOrUnknown(disk, 3)
		st.System.Disk = &DiskInfo{Total: parts[0], Used: parts[1], Usage: parts[2]}
	}
	return st, nil
}

// fieldsOrUnknown splits s on whitespace and pads the result to n with "?".
func fieldsOrUnknown(s string, n int) []string {
	parts := strings.Fields(s)
	out := make([]string, n)
	for i := range out {
		if i < len(parts) {
			out[i] = parts[i]
		} else {
			out[i] = "?"
		}
	}
	return out
}
