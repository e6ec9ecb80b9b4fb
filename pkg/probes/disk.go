package probes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// DiskProbe checks free space on a filesystem. It backs the preflight
// disk-space precondition: the unit's policy value is the minimum free
// space in KiB on the target path.
type DiskProbe struct{}

// Kind returns "disk".
func (p *DiskProbe) Kind() string { return "disk" }

// Evaluate reports present when the target filesystem has at least the
// required free space, absent with the measured value when it does not.
func (p *DiskProbe) Evaluate(_ context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	requiredKB, err := strconv.ParseInt(unit.Policy.Value, 10, 64)
	if err != nil || requiredKB < 0 {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("invalid required free space %q", unit.Policy.Value)
		return state
	}

	freeKB, err := FreeDiskKB(unit.Target)
	if err != nil {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("cannot stat filesystem %s: %v", unit.Target, err)
		return state
	}

	if freeKB >= requiredKB {
		state.Code = engine.StatePresent
		state.Value = unit.Policy.Value
		return state
	}

	state.Code = engine.StateAbsent
	state.Value = strconv.FormatInt(freeKB, 10)
	state.Detail = fmt.Sprintf("%d KiB free on %s, %d KiB required", freeKB, unit.Target, requiredKB)
	return state
}

// FreeDiskKB returns the free space available to unprivileged users on the
// filesystem containing path, in KiB.
func FreeDiskKB(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize / 1024, nil
}
