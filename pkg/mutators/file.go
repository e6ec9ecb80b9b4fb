package mutators

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// FileMutator writes policy-managed file content. Writes go through a temp
// file and rename so readers never see a partial file, and the returned
// NewHash is what the ledger records as the engine's own content for later
// customization detection.
type FileMutator struct {
	// Mode is the permission bits for created files. Defaults to 0644.
	Mode os.FileMode
}

// Kind returns "file".
func (m *FileMutator) Kind() string { return "file" }

// Apply writes or removes the unit's target file.
func (m *FileMutator) Apply(_ context.Context, unit engine.Unit) (engine.MutationResult, error) {
	switch unit.Policy.Target {
	case engine.StatePresent:
		return m.write(unit)
	case engine.StateAbsent:
		return m.remove(unit)
	default:
		return engine.MutationResult{}, fmt.Errorf("unsupported policy target: %s", unit.Policy.Target)
	}
}

func (m *FileMutator) write(unit engine.Unit) (engine.MutationResult, error) {
	want := []byte(unit.Policy.Value)
	sum := sha256.Sum256(want)
	newHash := hex.EncodeToString(sum[:])

	current, err := os.ReadFile(unit.Target)
	if err == nil && bytes.Equal(current, want) {
		return engine.MutationResult{
			Changed: false,
			Detail:  "content already matches",
			NewHash: newHash,
		}, nil
	}

	mode := m.Mode
	if mode == 0 {
		mode = 0o644
	}

	dir := filepath.Dir(unit.Target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engine.MutationResult{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".hardenctl-tmp-*")
	if err != nil {
		return engine.MutationResult{}, err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(want); err != nil {
		return engine.MutationResult{}, err
	}
	if err := tmp.Chmod(mode); err != nil {
		return engine.MutationResult{}, err
	}
	if err := tmp.Sync(); err != nil {
		return engine.MutationResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return engine.MutationResult{}, err
	}
	if err := os.Rename(tmpName, unit.Target); err != nil {
		return engine.MutationResult{}, err
	}

	return engine.MutationResult{
		Changed: true,
		Detail:  fmt.Sprintf("wrote %s (%d bytes)", unit.Target, len(want)),
		NewHash: newHash,
	}, nil
}

func (m *FileMutator) remove(unit engine.Unit) (engine.MutationResult, error) {
	err := os.Remove(unit.Target)
	if os.IsNotExist(err) {
		return engine.MutationResult{Changed: false, Detail: "already absent"}, nil
	}
	if err != nil {
		return engine.MutationResult{}, err
	}
	return engine.MutationResult{Changed: true, Detail: fmt.Sprintf("removed %s", unit.Target)}, nil
}
