// Package backup snapshots files aside before mutators overwrite them and
// restores them on request. Snapshots live under a dedicated directory,
// named by unit and timestamp, and are recorded in the ledger by the run
// sequencer. The engine never deletes a snapshot.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hardenctl/hardenctl/pkg/engine"
	"github.com/hardenctl/hardenctl/pkg/telemetry"
)

// Manager implements engine.BackupManager with plain filesystem copies.
type Manager struct {
	dir     string
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// Config holds backup manager configuration.
type Config struct {
	// Dir is the directory snapshots are written to.
	Dir string

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// NewManager creates a backup manager rooted at cfg.Dir.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Nop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{
		dir:     cfg.Dir,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Snapshot copies the path's current content into the backup directory and
// returns the record. A missing path returns a record with an empty
// BackupPath so restore knows the file did not exist before the mutation.
func (m *Manager) Snapshot(ctx context.Context, runID, unitID, path string) (*engine.BackupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &engine.BackupRecord{
		ID:           uuid.New().String(),
		RunID:        runID,
		UnitID:       unitID,
		OriginalPath: path,
		CreatedAt:    time.Now().UTC(),
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		m.logger.WithUnitID(unitID).Debugf("no snapshot needed, path does not exist: %s", path)
		return rec, nil
	}
	if err != nil {
		return nil, engine.NewError(engine.ClassBackup,
			fmt.Sprintf("cannot stat %s", path), err).
			WithCode(engine.CodeBackupFailed).WithUnit(unitID)
	}
	if info.IsDir() {
		return nil, engine.NewError(engine.ClassBackup,
			fmt.Sprintf("refusing to snapshot directory %s", path), nil).
			WithCode(engine.CodeBackupFailed).WithUnit(unitID)
	}

	backupPath := filepath.Join(m.dir, snapshotName(unitID, path, rec.CreatedAt))

	hash, err := copyWithHash(path, backupPath, info.Mode())
	if err != nil {
		return nil, engine.NewError(engine.ClassBackup,
			fmt.Sprintf("failed to snapshot %s", path), err).
			WithCode(engine.CodeBackupFailed).WithUnit(unitID)
	}

	rec.BackupPath = backupPath
	rec.ContentHash = hash

	m.logger.WithUnitID(unitID).WithField("backup_path", backupPath).
		Debugf("snapshotted %s", path)
	if m.metrics != nil {
		m.metrics.CountBackup()
	}

	return rec, nil
}

// Restore puts a snapshotted file back at its original path. A record with
// an empty BackupPath means the file did not exist before the mutation, so
// restore removes it.
func (m *Manager) Restore(ctx context.Context, rec *engine.BackupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if rec.BackupPath == "" {
		err := os.Remove(rec.OriginalPath)
		if err != nil && !os.IsNotExist(err) {
			return engine.NewError(engine.ClassBackup,
				fmt.Sprintf("failed to remove %s", rec.OriginalPath), err).
				WithCode(engine.CodeBackupFailed).WithUnit(rec.UnitID)
		}
		m.logger.WithUnitID(rec.UnitID).Infof("removed %s (did not exist before mutation)", rec.OriginalPath)
		return nil
	}

	info, err := os.Stat(rec.BackupPath)
	if err != nil {
		return engine.NewError(engine.ClassBackup,
			fmt.Sprintf("snapshot missing: %s", rec.BackupPath), err).
			WithCode(engine.CodeNotFound).WithUnit(rec.UnitID)
	}

	// Verify the snapshot before it touches the original; a tampered
	// snapshot must leave the original alone.
	if rec.ContentHash != "" {
		hash, herr := hashFile(rec.BackupPath)
		if herr != nil {
			return engine.NewError(engine.ClassBackup,
				fmt.Sprintf("failed to read snapshot %s", rec.BackupPath), herr).
				WithCode(engine.CodeBackupFailed).WithUnit(rec.UnitID)
		}
		if hash != rec.ContentHash {
			return engine.NewError(engine.ClassBackup,
				fmt.Sprintf("snapshot content hash mismatch for %s", rec.BackupPath), nil).
				WithCode(engine.CodeBackupFailed).WithUnit(rec.UnitID).
				WithRemediation("the snapshot file was modified after it was taken; inspect it before restoring manually")
		}
	}

	if _, err := copyWithHash(rec.BackupPath, rec.OriginalPath, info.Mode()); err != nil {
		return engine.NewError(engine.ClassBackup,
			fmt.Sprintf("failed to restore %s", rec.OriginalPath), err).
			WithCode(engine.CodeBackupFailed).WithUnit(rec.UnitID)
	}

	m.logger.WithUnitID(rec.UnitID).Infof("restored %s from %s", rec.OriginalPath, rec.BackupPath)
	return nil
}

// snapshotName builds a collision-free snapshot file name from the unit,
// the original path and the snapshot time.
func snapshotName(unitID, path string, at time.Time) string {
	flat := strings.NewReplacer("/", "_", " ", "_").Replace(strings.TrimPrefix(path, "/"))
	return fmt.Sprintf("%s--%s--%s", unitID, flat, at.Format("20060102T150405.000000000Z"))
}

// hashFile returns the hex sha256 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyWithHash copies src to dst via a temp file in dst's directory and
// returns the hex sha256 of the content. The rename makes the destination
// appear atomically.
func copyWithHash(src, dst string, mode os.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".hardenctl-tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		return "", err
	}
	if err := tmp.Chmod(mode); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
