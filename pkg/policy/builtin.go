package policy

import (
	"github.com/hardenctl/hardenctl/pkg/engine"
	"github.com/hardenctl/hardenctl/pkg/mutators"
)

// Builtin returns the built-in hardening catalog used when no catalog file
// is given. Phases run in order: preflight checks, package surface
// reduction, service state, configuration files, kernel parameters, mount
// options.
func Builtin() *Catalog {
	return &Catalog{
		Version:     1,
		Name:        "baseline-hardening",
		Description: "Baseline host hardening: legacy service removal, auditing, SSH and kernel tightening.",
		Units: []engine.Unit{
			{
				ID:           "disk.free-space",
				Phase:        0,
				Kind:         "disk",
				Target:       "/",
				Policy:       engine.Policy{Target: engine.StatePresent, Value: "524288"},
				Precondition: true,
			},
			{
				ID:          "pkg.telnetd",
				Phase:       1,
				Kind:        "package",
				Target:      "telnetd",
				Policy:      engine.Policy{Target: engine.StateAbsent},
				Destructive: true,
			},
			{
				ID:          "pkg.rsh-server",
				Phase:       1,
				Kind:        "package",
				Target:      "rsh-server",
				Policy:      engine.Policy{Target: engine.StateAbsent},
				Destructive: true,
			},
			{
				ID:     "pkg.auditd",
				Phase:  1,
				Kind:   "package",
				Target: "auditd",
				Policy: engine.Policy{Target: engine.StatePresent},
			},
			{
				ID:          "pkg.aide",
				Phase:       1,
				Kind:        "package",
				Target:      "aide",
				Policy:      engine.Policy{Target: engine.StatePresent},
				LongRunning: true,
			},
			{
				ID:        "svc.auditd",
				Phase:     2,
				Kind:      "service",
				Target:    "auditd",
				Policy:    engine.Policy{Target: engine.StatePresent},
				DependsOn: []string{"pkg.auditd"},
			},
			{
				ID:     "svc.telnet-socket",
				Phase:  2,
				Kind:   "service",
				Target: "telnet.socket",
				Policy: engine.Policy{Target: engine.StateAbsent},
			},
			{
				ID:     "file.sshd-hardening",
				Phase:  3,
				Kind:   "file",
				Target: "/etc/ssh/sshd_config.d/99-hardening.conf",
				Policy: engine.Policy{
					Target: engine.StatePresent,
					Value: "PermitRootLogin no\n" +
						"PasswordAuthentication no\n" +
						"X11Forwarding no\n" +
						"MaxAuthTries 3\n",
				},
				Overwrites:            []string{"/etc/ssh/sshd_config.d/99-hardening.conf"},
				RequiresConfirmation:  true,
				NonInteractiveDefault: engine.DefaultApply,
			},
			{
				ID:     "file.login-banner",
				Phase:  3,
				Kind:   "file",
				Target: "/etc/issue.net",
				Policy: engine.Policy{
					Target: engine.StatePresent,
					Value:  "Authorized access only. Activity is monitored.\n",
				},
				Overwrites:            []string{"/etc/issue.net"},
				NonInteractiveDefault: engine.DefaultApply,
			},
			{
				ID:         "sysctl.kptr-restrict",
				Phase:      4,
				Kind:       "sysctl",
				Target:     "kernel.kptr_restrict",
				Policy:     engine.Policy{Target: engine.StatePresent, Value: "2"},
				Overwrites: []string{mutators.DefaultDropInPath},
			},
			{
				ID:         "sysctl.suid-dumpable",
				Phase:      4,
				Kind:       "sysctl",
				Target:     "fs.suid_dumpable",
				Policy:     engine.Policy{Target: engine.StatePresent, Value: "0"},
				Overwrites: []string{mutators.DefaultDropInPath},
			},
			{
				ID:         "sysctl.ip-forward",
				Phase:      4,
				Kind:       "sysctl",
				Target:     "net.ipv4.ip_forward",
				Policy:     engine.Policy{Target: engine.StatePresent, Value: "0"},
				Overwrites: []string{mutators.DefaultDropInPath},
			},
			{
				ID:     "mount.tmp-options",
				Phase:  5,
				Kind:   "mount",
				Target: "/tmp",
				Policy: engine.Policy{
					Target: engine.StatePresent,
					Value:  "nodev,nosuid,noexec",
				},
				RequiresConfirmation: true,
			},
		},
	}
}
