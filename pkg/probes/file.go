package probes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// FileProbe reports a file's existence, content and content hash. The hash
// is what the decision engine compares against the ledger's last written
// hash to tell an operator edit from the engine's own stale output.
type FileProbe struct{}

// Kind returns "file".
func (p *FileProbe) Kind() string { return "file" }

// Evaluate stats and reads the unit's target path.
func (p *FileProbe) Evaluate(_ context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	info, err := os.Stat(unit.Target)
	if os.IsNotExist(err) {
		state.Code = engine.StateAbsent
		return state
	}
	if err != nil {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("cannot stat %s: %v", unit.Target, err)
		return state
	}
	if info.IsDir() {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("%s is a directory", unit.Target)
		return state
	}

	content, err := os.ReadFile(unit.Target)
	if err != nil {
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("cannot read %s: %v", unit.Target, err)
		return state
	}

	sum := sha256.Sum256(content)
	state.Code = engine.StatePresent
	state.Value = string(content)
	state.Hash = hex.EncodeToString(sum[:])
	return state
}
