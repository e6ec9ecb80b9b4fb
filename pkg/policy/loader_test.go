package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

const validCatalogYAML = `
version: 1
name: test-hardening
description: minimal test catalog
units:
  - id: pkg.auditd
    phase: 1
    kind: package
    target: auditd
    policy:
      target: present
  - id: svc.auditd
    phase: 2
    kind: service
    target: auditd
    depends_on:
      - pkg.auditd
    policy:
      target: present
  - id: sysctl.kptr-restrict
    phase: 3
    kind: sysctl
    target: kernel.kptr_restrict
    policy:
      target: present
      value: "2"
`

func TestLoadValidCatalog(t *testing.T) {
	catalog, err := NewLoader().Load(context.Background(), []byte(validCatalogYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if catalog.Name != "test-hardening" {
		t.Errorf("Expected name test-hardening, got %s", catalog.Name)
	}
	if len(catalog.Units) != 3 {
		t.Fatalf("Expected 3 units, got %d", len(catalog.Units))
	}

	unit := catalog.Unit("sysctl.kptr-restrict")
	if unit == nil {
		t.Fatal("Unit lookup failed")
	}
	if unit.Policy.Target != engine.StatePresent || unit.Policy.Value != "2" {
		t.Errorf("Policy not decoded: %+v", unit.Policy)
	}

	svc := catalog.Unit("svc.auditd")
	if len(svc.DependsOn) != 1 || svc.DependsOn[0] != "pkg.auditd" {
		t.Errorf("Dependencies not decoded: %+v", svc.DependsOn)
	}
}

func TestLoadRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "not yaml",
			yaml: "{{{",
		},
		{
			name: "missing name",
			yaml: `
version: 1
units:
  - id: pkg.x
    phase: 0
    kind: package
    target: x
    policy:
      target: present
`,
		},
		{
			name: "no units",
			yaml: `
version: 1
name: empty
units: []
`,
		},
		{
			name: "unknown kind",
			yaml: `
version: 1
name: bad-kind
units:
  - id: fw.default
    phase: 0
    kind: firewall
    target: input
    policy:
      target: present
`,
		},
		{
			name: "bad unit id",
			yaml: `
version: 1
name: bad-id
units:
  - id: "Has Spaces"
    phase: 0
    kind: package
    target: x
    policy:
      target: present
`,
		},
		{
			name: "invalid policy target",
			yaml: `
version: 1
name: bad-policy
units:
  - id: pkg.x
    phase: 0
    kind: package
    target: x
    policy:
      target: enabled
`,
		},
		{
			name: "duplicate unit ids",
			yaml: `
version: 1
name: dup
units:
  - id: pkg.x
    phase: 0
    kind: package
    target: x
    policy:
      target: present
  - id: pkg.x
    phase: 1
    kind: package
    target: x
    policy:
      target: absent
`,
		},
		{
			name: "undeclared dependency",
			yaml: `
version: 1
name: dangling
units:
  - id: svc.x
    phase: 0
    kind: service
    target: x
    depends_on:
      - pkg.x
    policy:
      target: present
`,
		},
		{
			name: "self dependency",
			yaml: `
version: 1
name: selfdep
units:
  - id: svc.x
    phase: 0
    kind: service
    target: x
    depends_on:
      - svc.x
    policy:
      target: present
`,
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), []byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(validCatalogYAML), 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}

	catalog, err := NewLoader().LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if catalog.Name != "test-hardening" {
		t.Errorf("Unexpected catalog: %s", catalog.Name)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := NewLoader().LoadFile(context.Background(), "/nonexistent/catalog.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSchemaRegistryBuiltins(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	if len(names) != 2 {
		t.Errorf("Expected 2 built-in schemas, got %v", names)
	}
	for _, name := range []string{"catalog", "unit"} {
		if _, ok := sr.GetSchema(name); !ok {
			t.Errorf("Missing built-in schema %s", name)
		}
	}
}

func TestSchemaRegistryRejectsBadSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("broken", "#Broken: {"); err == nil {
		t.Error("Expected compile error for malformed schema")
	}
}

func TestValidateAgainstSchemaUnknownName(t *testing.T) {
	sr := NewSchemaRegistry()
	err := sr.ValidateAgainstSchema(context.Background(), "nope", map[string]interface{}{})
	if err == nil {
		t.Error("Expected error for unknown schema")
	}
}
