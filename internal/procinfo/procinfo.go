// Package procinfo enriches a freshly spawned terminal process with
// metadata the OS tracks but exec.Cmd doesn't surface on its own
// (parent pid, precise start time).
package procinfo

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Meta is the subset of OS process metadata ProcessInfo can absorb.
type Meta struct {
	ParentPID int
	StartTime time.Time
}

// Lookup returns enrichment data for pid, or ok=false if the process
// cannot be inspected (already exited, permissions, platform support).
// Callers must treat failure as non-fatal: spawn already succeeded.
func Lookup(pid int) (Meta, bool) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Meta{}, false
	}

	var meta Meta
	if ppid, err := proc.Ppid(); err == nil {
		meta.ParentPID = int(ppid)
	}
	if createdMs, err := proc.CreateTime(); err == nil {
		meta.StartTime = time.UnixMilli(createdMs)
	} else {
		meta.StartTime = time.Now()
	}
	return meta, true
}
