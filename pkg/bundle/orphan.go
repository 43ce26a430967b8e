// Copyright 2025 Ledgercore Contributors
//
// Orphan reconciliation (spec.md §4.6): find off-chain files present on
// disk with no referencing catalog row — left behind by a crash between
// writing a file and committing its block — and remove them. Bounded by a
// per-cycle cap and a free-disk-space floor so a reconciliation pass never
// itself becomes a resource hazard.

package bundle

import (
	"context"
	"fmt"
	"log"

	"github.com/tamperledger/ledgercore/pkg/ledger"
)

// Defaults from spec.md §4.6: warn above 100,000 tracked items, cap
// deletions per cycle at 1,000 to bound I/O, and require at least 1 GiB
// free on the off-chain volume before a cycle is allowed to proceed.
const (
	defaultOrphanCyclesCap      = 1000
	defaultWarnTrackedItems     = 100000
	defaultMinFreeDiskBytes     = 1 << 30
)

// OrphanReport summarizes one reconciliation pass.
type OrphanReport struct {
	ManagedFiles   int
	Referenced     int
	OrphansFound   int
	OrphansDeleted int
	DeleteErrors   []string
	Truncated      bool
}

// ReconcileOrphans scans engine's off-chain directory and deletes any
// managed file not referenced by an off_chain_data row, up to
// defaultOrphanCyclesCap deletions per call. It refuses to run at all if
// the off-chain volume has less than defaultMinFreeDiskBytes free, since a
// reconciliation pass that itself exhausts disk space would make things
// worse, not better.
func ReconcileOrphans(ctx context.Context, engine *ledger.Engine) (*OrphanReport, error) {
	free, err := freeDiskBytes(engine.Store().Dir())
	if err != nil {
		log.Printf("orphan reconciliation: could not determine free disk space for %s: %v; proceeding anyway", engine.Store().Dir(), err)
	} else if free < defaultMinFreeDiskBytes {
		return nil, fmt.Errorf("orphan reconciliation refused: only %d bytes free on %s, below the %d-byte floor", free, engine.Store().Dir(), defaultMinFreeDiskBytes)
	}

	managed, err := engine.Store().ManagedFiles()
	if err != nil {
		return nil, fmt.Errorf("list managed off-chain files: %w", err)
	}

	offRows, err := engine.Repositories().OffChainData.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list off-chain data rows: %w", err)
	}
	referenced := make(map[string]struct{}, len(offRows))
	for _, row := range offRows {
		referenced[row.FilePath] = struct{}{}
	}
	if len(referenced) > defaultWarnTrackedItems {
		log.Printf("orphan reconciliation: %d tracked off-chain files exceeds the %d-item comfort threshold", len(referenced), defaultWarnTrackedItems)
	}

	report := &OrphanReport{ManagedFiles: len(managed), Referenced: len(referenced)}

	for _, name := range managed {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		report.OrphansFound++
		if report.OrphansDeleted >= defaultOrphanCyclesCap {
			report.Truncated = true
			continue
		}
		if err := engine.Store().DeleteByName(name); err != nil {
			report.DeleteErrors = append(report.DeleteErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		report.OrphansDeleted++
	}
	return report, nil
}
