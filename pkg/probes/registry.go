package probes

import "github.com/hardenctl/hardenctl/pkg/engine"

// All returns one probe per supported unit kind.
func All() []engine.Probe {
	return []engine.Probe{
		&PackageProbe{},
		&ServiceProbe{},
		&FileProbe{},
		&MountProbe{},
		&SysctlProbe{},
		&DiskProbe{},
	}
}
