package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

func setupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: filepath.Join(dir, "backups")})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewManagerRequiresDir(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("Expected error for empty directory")
	}
}

func TestSnapshotCopiesContent(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "sshd.conf")
	writeFile(t, original, "PermitRootLogin yes\n")

	rec, err := m.Snapshot(context.Background(), "run-1", "file.sshd", original)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if rec.RunID != "run-1" || rec.UnitID != "file.sshd" || rec.OriginalPath != original {
		t.Errorf("Record fields wrong: %+v", rec)
	}
	if rec.BackupPath == "" {
		t.Fatal("Expected a backup path for an existing file")
	}

	copied, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		t.Fatalf("Reading snapshot: %v", err)
	}
	if string(copied) != "PermitRootLogin yes\n" {
		t.Errorf("Snapshot content mismatch: %q", copied)
	}

	sum := sha256.Sum256(copied)
	if rec.ContentHash != hex.EncodeToString(sum[:]) {
		t.Errorf("Content hash mismatch: %s", rec.ContentHash)
	}
}

func TestSnapshotMissingPath(t *testing.T) {
	m, dir := setupManager(t)

	rec, err := m.Snapshot(context.Background(), "run-1", "file.new", filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("Snapshot of missing path should succeed: %v", err)
	}
	if rec.BackupPath != "" {
		t.Errorf("Missing path must record an empty backup path, got %q", rec.BackupPath)
	}
}

func TestSnapshotRefusesDirectory(t *testing.T) {
	m, dir := setupManager(t)

	_, err := m.Snapshot(context.Background(), "run-1", "file.dir", dir)
	if err == nil {
		t.Fatal("Expected error for directory snapshot")
	}
	var e *engine.Error
	if !errors.As(err, &e) || e.Class != engine.ClassBackup {
		t.Errorf("Expected backup error class, got %v", err)
	}
}

func TestSnapshotNamesAreUnique(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "issue.net")
	writeFile(t, original, "v1")

	first, err := m.Snapshot(context.Background(), "run-1", "file.banner", original)
	if err != nil {
		t.Fatalf("First snapshot failed: %v", err)
	}

	writeFile(t, original, "v2")
	second, err := m.Snapshot(context.Background(), "run-2", "file.banner", original)
	if err != nil {
		t.Fatalf("Second snapshot failed: %v", err)
	}

	if first.BackupPath == second.BackupPath {
		t.Error("Successive snapshots must not overwrite each other")
	}
	if content, _ := os.ReadFile(first.BackupPath); string(content) != "v1" {
		t.Errorf("First snapshot clobbered: %q", content)
	}
}

func TestRestorePutsContentBack(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "sysctl.conf")
	writeFile(t, original, "before")

	rec, err := m.Snapshot(context.Background(), "run-1", "sysctl.x", original)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	writeFile(t, original, "after mutation")
	if err := m.Restore(context.Background(), rec); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	content, err := os.ReadFile(original)
	if err != nil {
		t.Fatalf("Reading restored file: %v", err)
	}
	if string(content) != "before" {
		t.Errorf("Expected restored content, got %q", content)
	}
}

func TestRestoreRemovesPreviouslyMissingFile(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "created-by-mutation")

	rec, err := m.Snapshot(context.Background(), "run-1", "file.new", original)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Mutation creates the file; restore should remove it again.
	writeFile(t, original, "new content")
	if err := m.Restore(context.Background(), rec); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Error("Expected file to be removed on restore")
	}

	// Restoring again when the file is already gone is a no-op.
	if err := m.Restore(context.Background(), rec); err != nil {
		t.Fatalf("Repeated restore failed: %v", err)
	}
}

func TestRestoreDetectsTamperedSnapshot(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "banner")
	writeFile(t, original, "trusted")

	rec, err := m.Snapshot(context.Background(), "run-1", "file.banner", original)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	writeFile(t, rec.BackupPath, "tampered")
	err = m.Restore(context.Background(), rec)
	if err == nil {
		t.Fatal("Expected hash mismatch error")
	}
	var e *engine.Error
	if !errors.As(err, &e) || e.Class != engine.ClassBackup {
		t.Errorf("Expected backup error class, got %v", err)
	}

	// The refused restore must not have touched the original.
	content, rerr := os.ReadFile(original)
	if rerr != nil {
		t.Fatalf("Failed to read original: %v", rerr)
	}
	if string(content) != "trusted" {
		t.Errorf("Original clobbered by refused restore: %q", content)
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	m, dir := setupManager(t)

	rec := &engine.BackupRecord{
		ID: "bak-1", RunID: "run-1", UnitID: "file.x",
		OriginalPath: filepath.Join(dir, "orig"),
		BackupPath:   filepath.Join(dir, "gone"),
	}
	err := m.Restore(context.Background(), rec)
	if err == nil {
		t.Fatal("Expected error for missing snapshot file")
	}
	var e *engine.Error
	if !errors.As(err, &e) || e.Code != engine.CodeNotFound {
		t.Errorf("Expected not-found code, got %v", err)
	}
}

func TestSnapshotPreservesMode(t *testing.T) {
	m, dir := setupManager(t)
	original := filepath.Join(dir, "script.sh")
	writeFile(t, original, "#!/bin/sh\n")
	if err := os.Chmod(original, 0o750); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	rec, err := m.Snapshot(context.Background(), "run-1", "file.script", original)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	info, err := os.Stat(rec.BackupPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Mode().Perm() != 0o750 {
		t.Errorf("Expected mode 0750, got %o", info.Mode().Perm())
	}
}
