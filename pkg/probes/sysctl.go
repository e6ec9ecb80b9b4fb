package probes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// SysctlProbe reads kernel parameters from /proc/sys.
type SysctlProbe struct {
	// Root overrides the /proc/sys mount point, for tests.
	Root string
}

// Kind returns "sysctl".
func (p *SysctlProbe) Kind() string { return "sysctl" }

// Evaluate reads the unit's target key. A key the running kernel does not
// expose is absent; a key that exists but cannot be read is unknown.
func (p *SysctlProbe) Evaluate(_ context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	root := p.Root
	if root == "" {
		root = "/proc/sys"
	}
	path := filepath.Join(root, strings.ReplaceAll(unit.Target, ".", "/"))

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		state.Code = engine.StateAbsent
		return state
	}
	if err != nil {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("cannot read %s: %v", path, err)
		return state
	}

	state.Code = engine.StatePresent
	state.Value = strings.TrimSpace(string(content))
	return state
}
