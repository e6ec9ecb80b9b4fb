package probes

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runOutput runs a command and returns its trimmed stdout.
func runOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// detectPackageManager finds the first supported package manager on PATH.
func detectPackageManager() (string, error) {
	managers := []string{"apt", "dnf", "yum", "zypper"}
	for _, mgr := range managers {
		if _, err := exec.LookPath(mgr); err == nil {
			return mgr, nil
		}
	}
	return "", fmt.Errorf("no supported package manager found")
}
