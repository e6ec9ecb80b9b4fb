package mutators

import "github.com/hardenctl/hardenctl/pkg/engine"

// All returns one mutator per mutable unit kind. The "disk" kind has no
// mutator on purpose: disk units are preflight checks and never reach the
// apply path.
func All() []engine.Mutator {
	return []engine.Mutator{
		&PackageMutator{},
		&ServiceMutator{},
		&FileMutator{},
		&MountMutator{},
		&SysctlMutator{},
	}
}
