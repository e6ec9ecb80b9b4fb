package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hardenctl/hardenctl/pkg/backup"
	"github.com/hardenctl/hardenctl/pkg/engine"
	"github.com/hardenctl/hardenctl/pkg/guard"
	"github.com/hardenctl/hardenctl/pkg/ledger"
	"github.com/hardenctl/hardenctl/pkg/mutators"
	"github.com/hardenctl/hardenctl/pkg/policy"
	"github.com/hardenctl/hardenctl/pkg/probes"
	"github.com/hardenctl/hardenctl/pkg/telemetry"
)

// runtime holds the wired collaborators shared by the run-facing commands.
type runtime struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	ledger  *ledger.SQLiteLedger
	backups *backup.Manager
	guard   *guard.Engine
}

// openRuntime opens the ledger, backup store and guard under the state
// directory. Callers must Close it.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := telemetry.DefaultConfig()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics := telemetry.NewMetrics(cfg.Metrics)

	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, toolVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	led, err := ledger.New(ledger.Config{Path: filepath.Join(stateDir, "ledger.db")})
	if err != nil {
		return nil, err
	}
	if err := led.Init(ctx); err != nil {
		return nil, err
	}
	if err := led.Migrate(ctx); err != nil {
		led.Close()
		return nil, err
	}

	backups, err := backup.NewManager(backup.Config{
		Dir:     filepath.Join(stateDir, "backups"),
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		led.Close()
		return nil, err
	}

	g, err := guard.NewEngine(logger)
	if err != nil {
		led.Close()
		return nil, err
	}

	return &runtime{
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		ledger:  led,
		backups: backups,
		guard:   g,
	}, nil
}

// Close releases the runtime's resources.
func (r *runtime) Close() {
	if r.ledger != nil {
		_ = r.ledger.Close()
	}
	if r.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.tracer.Shutdown(ctx)
	}
}

// sequencer wires a run sequencer over the runtime. The gate is a terminal
// prompt for interactive runs and the deterministic default resolver
// otherwise.
func (r *runtime) sequencer(interactive bool) *engine.Sequencer {
	var gate engine.Gate = engine.NewDefaultGate()
	if interactive {
		gate = engine.NewTerminalGate(os.Stdin, os.Stdout)
	}

	return engine.NewSequencer(engine.SequencerConfig{
		Probes:      probes.All(),
		Mutators:    mutators.All(),
		Gate:        gate,
		Backups:     r.backups,
		Ledger:      r.ledger,
		Guard:       r.guard,
		Measurer:    &probes.SystemMeasurer{},
		Metrics:     r.metrics,
		Tracer:      r.tracer,
		Logger:      r.logger,
		ToolVersion: toolVersion,
	})
}

// loadCatalog loads the catalog file, or the built-in catalog when no file
// was given.
func loadCatalog(ctx context.Context) (*policy.Catalog, error) {
	if catalogPath == "" {
		return policy.Builtin(), nil
	}
	return policy.NewLoader().LoadFile(ctx, catalogPath)
}
