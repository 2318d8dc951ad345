// Copyright 2025 Certen Protocol
//
// Durable resumption cursor: spec.md §8 scenario 6 requires that an
// orchestrator crash and restart resumes rather than re-planning and
// re-submitting checkpoints that already finalized. Orchestrator's
// checkpoint counter, bootstrapped flag, and current block UTXO/script are
// otherwise held only in memory (set at the end of a successful RunOnce or
// Bootstrap); this file persists them through state.Store's opaque cursor
// slot so Recover can restore them after a restart.
package orchestrator

import (
	"fmt"

	"github.com/certen/rollup-coordinator/internal/l1tx"
	"github.com/certen/rollup-coordinator/pkg/commitment"
)

// cursor is the wire shape saved after every successful commit.
type cursor struct {
	Checkpoint   uint64        `json:"checkpoint"`
	Bootstrapped bool          `json:"bootstrapped"`
	BlockUTXO    l1tx.BlockUTXO `json:"block_utxo"`
	BlockScript  []byte        `json:"block_script"`
}

// saveCursor persists c, overwriting whatever cursor was saved before.
func (o *Orchestrator) saveCursor(c cursor) error {
	raw, err := commitment.MarshalCanonical(c)
	if err != nil {
		return fmt.Errorf("orchestrator: encode cursor: %w", err)
	}
	return o.store.SaveCursor(raw)
}

// Recover loads the durable cursor, if one was ever saved, and restores the
// checkpoint counter, bootstrapped flag, and block UTXO/script from it,
// exactly as they stood after the last successful commit. It is a no-op on
// a fresh deployment that has never committed a checkpoint. It must be
// called once, after New and before Run (or before Bootstrap, since a
// recovered cursor's Bootstrapped flag determines whether Bootstrap is
// still needed).
func (o *Orchestrator) Recover() error {
	raw, ok, err := o.store.LoadCursor()
	if err != nil {
		return fmt.Errorf("orchestrator: load cursor: %w", err)
	}
	if !ok {
		return nil
	}
	var c cursor
	if err := commitment.CanonicalJSONUnmarshal(raw, &c); err != nil {
		return fmt.Errorf("orchestrator: decode cursor: %w", err)
	}
	o.mu.Lock()
	o.checkpoint = c.Checkpoint
	o.bootstrapped = c.Bootstrapped
	o.blockUTXO = c.BlockUTXO
	o.blockScript = c.BlockScript
	o.mu.Unlock()
	o.logger.Printf("recovered cursor: checkpoint %d, bootstrapped %v", c.Checkpoint, c.Bootstrapped)
	return nil
}
