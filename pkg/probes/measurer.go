package probes

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// SystemMeasurer captures the aggregate run baseline: free disk space,
// installed package count and active service count. Individual
// measurements that cannot be taken stay zero; Measure only fails when the
// machine yields nothing at all.
type SystemMeasurer struct {
	// Root is the filesystem measured for free space. Defaults to "/".
	Root string
}

// Measure collects the baseline numbers.
func (m *SystemMeasurer) Measure(ctx context.Context) (engine.Baseline, error) {
	baseline := engine.Baseline{CapturedAt: time.Now()}

	root := m.Root
	if root == "" {
		root = "/"
	}

	measured := 0
	if freeKB, err := FreeDiskKB(root); err == nil {
		baseline.FreeDiskKB = freeKB
		measured++
	}
	if count, err := m.packageCount(ctx); err == nil {
		baseline.PackageCount = count
		measured++
	}
	if count, err := m.activeServiceCount(ctx); err == nil {
		baseline.ActiveServiceCount = count
		measured++
	}

	if measured == 0 {
		return baseline, fmt.Errorf("no baseline measurement could be taken")
	}
	return baseline, nil
}

func (m *SystemMeasurer) packageCount(ctx context.Context) (int, error) {
	manager, err := detectPackageManager()
	if err != nil {
		return 0, err
	}

	var cmd *exec.Cmd
	switch manager {
	case "apt":
		cmd = exec.CommandContext(ctx, "dpkg-query", "-W", "-f=${Package}\n")
	default:
		cmd = exec.CommandContext(ctx, "rpm", "-qa", "--queryformat", "%{NAME}\n")
	}

	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return countLines(string(out)), nil
}

func (m *SystemMeasurer) activeServiceCount(ctx context.Context) (int, error) {
	out, err := runOutput(ctx, "systemctl", "list-units",
		"--type=service", "--state=active", "--no-legend", "--plain")
	if err != nil {
		return 0, err
	}
	return countLines(out), nil
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
