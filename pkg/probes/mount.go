package probes

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// MountProbe reports a mount point's presence and whether it carries the
// options the unit's policy asks for.
type MountProbe struct {
	// MountsFile overrides /proc/self/mounts, for tests.
	MountsFile string
}

// Kind returns "mount".
func (p *MountProbe) Kind() string { return "mount" }

// Evaluate looks the unit's target up in the mount table. When the mount
// exists and already carries every option the policy wants, the observed
// value is normalized to the policy value so the decision engine sees
// convergence; otherwise the actual options are reported.
func (p *MountProbe) Evaluate(_ context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	mountsFile := p.MountsFile
	if mountsFile == "" {
		mountsFile = "/proc/self/mounts"
	}

	options, found, err := lookupMountOptions(mountsFile, unit.Target)
	if err != nil {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("cannot read mount table: %v", err)
		return state
	}
	if !found {
		state.Code = engine.StateAbsent
		return state
	}

	state.Code = engine.StatePresent
	if unit.Policy.Value != "" && hasAllOptions(options, unit.Policy.Value) {
		state.Value = unit.Policy.Value
	} else {
		state.Value = normalizeOptions(options)
	}
	return state
}

// MountConverged reports whether the mount point is present in the table
// and already carries every option in want. The mount mutator uses it to
// skip redundant remounts.
func MountConverged(mountsFile, mountPoint, want string) (bool, error) {
	options, found, err := lookupMountOptions(mountsFile, mountPoint)
	if err != nil || !found {
		return false, err
	}
	return hasAllOptions(options, want), nil
}

// lookupMountOptions finds the options of the last mount table entry for
// the given mount point. The last entry wins, matching kernel overmount
// semantics.
func lookupMountOptions(mountsFile, mountPoint string) (string, bool, error) {
	f, err := os.Open(mountsFile)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	var options string
	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if unescapeMountPath(fields[1]) == mountPoint {
			options = fields[3]
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, err
	}

	return options, found, nil
}

// hasAllOptions reports whether every comma-separated option in want is in
// the mount's option list.
func hasAllOptions(actual, want string) bool {
	have := make(map[string]struct{})
	for _, opt := range strings.Split(actual, ",") {
		have[opt] = struct{}{}
	}
	for _, opt := range strings.Split(want, ",") {
		if _, ok := have[opt]; !ok {
			return false
		}
	}
	return true
}

func normalizeOptions(options string) string {
	opts := strings.Split(options, ",")
	sort.Strings(opts)
	return strings.Join(opts, ",")
}

// unescapeMountPath decodes the octal escapes /proc/self/mounts uses for
// spaces, tabs and backslashes in mount points.
func unescapeMountPath(s string) string {
	replacer := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return replacer.Replace(s)
}
