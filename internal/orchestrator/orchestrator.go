// Copyright 2025 Certen Protocol
//
// Package orchestrator implements the single-actor block production loop
// of spec.md §4.7. One Orchestrator advances one checkpoint per tick,
// driving every other package in this repository in sequence: it drains
// the RPC processor's accumulated requests into the planner, hands the
// planner's leaf circuit inputs to the aggregation scheduler, waits for
// the scheduler's block proof JobId to become durable, then builds and
// submits the checkpoint's L1 settlement transaction. Per §4.7, "any step
// failure leaves the KV store untouched for that checkpoint ... and
// returns the orchestrator to Idle after logging" -- this implementation
// reads that literally: the only KV-store commit any one tick makes is
// internal/planner.Planner.Plan's SaveBlockState call, so a failure after
// planning retries the same checkpoint's dispatch/proof/submit sequence
// against the bundle already accumulated in the RPC processor (not yet
// Reset), rather than attempting to roll back a write that already
// committed.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/certen/rollup-coordinator/internal/aggregation"
	"github.com/certen/rollup-coordinator/internal/config"
	"github.com/certen/rollup-coordinator/internal/jobid"
	"github.com/certen/rollup-coordinator/internal/l1tx"
	"github.com/certen/rollup-coordinator/internal/metrics"
	"github.com/certen/rollup-coordinator/internal/planner"
	"github.com/certen/rollup-coordinator/internal/proofstore"
	"github.com/certen/rollup-coordinator/internal/proofsystem"
	"github.com/certen/rollup-coordinator/internal/queue"
	"github.com/certen/rollup-coordinator/internal/rpc"
	"github.com/certen/rollup-coordinator/internal/state"
)

// Orchestrator is the single actor that drives one checkpoint's block
// production to completion per tick, per spec.md §4.7/§5 ("the
// orchestrator is single-threaded cooperative").
type Orchestrator struct {
	queue     *queue.Queue
	processor *rpc.Processor
	planner   *planner.Planner
	scheduler *aggregation.Scheduler
	proofs    *proofstore.Store
	store     *state.Store
	l1        L1Node
	cfg       config.OrchestratorConfig
	devMode   bool
	metrics   *metrics.Metrics
	logger    *log.Logger

	aggFingerprint proofsystem.Fingerprint

	mu          sync.Mutex
	state       State
	checkpoint  uint64
	blockUTXO   l1tx.BlockUTXO
	blockScript []byte
	bootstrapped bool
}

// New constructs an Orchestrator. A nil logger falls back to a
// component-tagged default, matching the teacher's per-component logger
// construction; a nil metrics disables metric updates rather than
// panicking, since cmd/rollupapi-style read-only tooling may wire an
// Orchestrator's state without a registered Metrics.
func New(
	q *queue.Queue,
	processor *rpc.Processor,
	p *planner.Planner,
	scheduler *aggregation.Scheduler,
	proofs *proofstore.Store,
	store *state.Store,
	l1 L1Node,
	aggFingerprint proofsystem.Fingerprint,
	cfg config.OrchestratorConfig,
	devMode bool,
	m *metrics.Metrics,
	logger *log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[Orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		queue:          q,
		processor:      processor,
		planner:        p,
		scheduler:      scheduler,
		proofs:         proofs,
		store:          store,
		l1:             l1,
		cfg:            cfg,
		devMode:        devMode,
		metrics:        m,
		logger:         logger,
		aggFingerprint: aggFingerprint,
		state:          StateIdle,
		checkpoint:     1,
	}
}

// State returns the orchestrator's current step, safe to call from another
// goroutine.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Checkpoint returns the checkpoint id the orchestrator is currently
// working on or has most recently committed.
func (o *Orchestrator) Checkpoint() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkpoint
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Bootstrap records the genesis settlement's funding UTXO and submits it,
// establishing the first block UTXO every subsequent checkpoint's
// BuildSettlement spends. It must be called exactly once, before Run,
// since spec.md §4.6's standard settlement path assumes a prior block
// UTXO exists.
func (o *Orchestrator) Bootstrap(ctx context.Context, funder l1tx.BlockUTXO, funderScript []byte, setupFee uint64, genesisScriptHash state.Hash160) error {
	o.mu.Lock()
	if o.bootstrapped {
		o.mu.Unlock()
		return ErrAlreadyBootstrapped
	}
	o.bootstrapped = true
	o.mu.Unlock()

	settlement, err := l1tx.BuildGenesis(funder, funderScript, setupFee, genesisScriptHash)
	if err != nil {
		return fmt.Errorf("orchestrator: build genesis settlement: %w", err)
	}
	txid, err := o.submitWithRetry(ctx, settlement.Transaction)
	if err != nil {
		return fmt.Errorf("orchestrator: submit genesis settlement: %w", err)
	}
	if err := o.l1.Mine(ctx); err != nil {
		return fmt.Errorf("orchestrator: mine genesis confirmation: %w", err)
	}

	genesisScript, err := l1tx.BuildGenesisScriptFallback(genesisScriptHash)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.blockUTXO = l1tx.BlockUTXO{Txid: txid, Vout: 0, Value: uint64(settlement.Transaction.TxOut[0].Value)}
	o.blockScript = genesisScript
	cur := cursor{Checkpoint: o.checkpoint, Bootstrapped: o.bootstrapped, BlockUTXO: o.blockUTXO, BlockScript: o.blockScript}
	o.mu.Unlock()
	if err := o.saveCursor(cur); err != nil {
		return fmt.Errorf("orchestrator: persist bootstrap cursor: %w", err)
	}
	return nil
}

// Run drives RunOnce in a loop until ctx is canceled, logging (but not
// propagating) every per-block error, per §4.7's "returns the
// orchestrator to Idle after logging."
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		if err := o.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Printf("block production failed: %v", err)
		}
	}
}

// RunOnce advances exactly one checkpoint through the full state machine,
// or returns an error (leaving the checkpoint counter and RPC processor's
// accumulated bundle untouched so the next tick retries) per §4.7.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	o.setState(StateIdle)
	o.setState(StateWaitingForProduceBlockCmd)
	if _, err := o.queue.Pop(ctx, queue.TopicProduceBlock); err != nil {
		return err
	}

	o.mu.Lock()
	cp := o.checkpoint
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.CurrentCheckpoint.Set(float64(cp))
	}

	o.setState(StatePlanning)
	prev, err := o.loadPrevBlockState(cp)
	if err != nil {
		return o.fail(err)
	}

	if err := o.ingestQueued(); err != nil {
		return o.fail(err)
	}
	pendingWithdrawals, err := o.ingestPendingWithdrawals(cp, prev)
	if err != nil {
		return o.fail(err)
	}
	o.mu.Lock()
	watchScript := o.blockScript
	o.mu.Unlock()
	sweptDeposits, err := o.ingestDeposits(ctx, cp, watchScript)
	if err != nil {
		return o.fail(err)
	}

	result, err := o.planner.Plan(cp, prev, o.processor.Bundle())
	if err != nil {
		return o.fail(err)
	}

	o.setState(StateDispatched)
	blockID, err := o.scheduler.BuildBlockTree(cp, result, o.aggFingerprint)
	if err != nil {
		return o.fail(err)
	}

	o.setState(StateAwaitingFinalProof)
	if _, err := o.awaitProof(ctx, blockID); err != nil {
		return o.fail(err)
	}
	if o.metrics != nil {
		o.metrics.ProofsAggregated.Inc()
	}

	o.setState(StateSubmitting)
	stateHash, err := o.store.Root(cp)
	if err != nil {
		return o.fail(err)
	}
	nextScript := l1tx.BuildBlockScript(stateHash.Bytes(), o.devMode)
	nextScriptHash, err := hash160Of(nextScript)
	if err != nil {
		return o.fail(err)
	}

	o.mu.Lock()
	blockUTXO := o.blockUTXO
	currentScript := o.blockScript
	o.mu.Unlock()
	if currentScript == nil {
		return o.fail(ErrNoBlockUTXO)
	}

	settlement, err := l1tx.BuildSettlement(blockUTXO, sweptDeposits, pendingWithdrawals, currentScript, nextScript, nextScriptHash)
	if err != nil {
		return o.fail(err)
	}

	txid, err := o.submitWithRetry(ctx, settlement.Transaction)
	if err != nil {
		return o.fail(err)
	}

	o.setState(StateMiningConfirmation)
	if err := o.l1.Mine(ctx); err != nil {
		return o.fail(err)
	}

	committed := cursor{
		Checkpoint:   cp + 1,
		Bootstrapped: true,
		BlockUTXO:    l1tx.BlockUTXO{Txid: txid, Vout: 0, Value: uint64(settlement.Transaction.TxOut[0].Value)},
		BlockScript:  nextScript,
	}
	if err := o.saveCursor(committed); err != nil {
		return o.fail(fmt.Errorf("orchestrator: persist checkpoint %d cursor: %w", cp, err))
	}

	o.mu.Lock()
	o.blockUTXO = committed.BlockUTXO
	o.blockScript = committed.BlockScript
	o.checkpoint = committed.Checkpoint
	o.mu.Unlock()
	o.processor.Reset(cp + 1)

	if o.metrics != nil {
		o.metrics.BlocksProduced.Inc()
	}
	o.logger.Printf("checkpoint %d committed, txid %s", cp, txid.Hex())
	o.setState(StateIdle)
	return nil
}

// fail logs err, counts it, and returns it. The checkpoint counter and RPC
// processor bundle are left untouched by every caller of fail (they are
// only mutated after a tick fully succeeds), satisfying §4.7's "any step
// failure leaves the KV store untouched for that checkpoint."
func (o *Orchestrator) fail(err error) error {
	o.logger.Printf("checkpoint %d: %v", o.Checkpoint(), err)
	if o.metrics != nil {
		o.metrics.BlocksFailed.Inc()
	}
	o.setState(StateIdle)
	return err
}

func (o *Orchestrator) loadPrevBlockState(cp uint64) (state.BlockState, error) {
	if cp <= 1 {
		return state.BlockState{}, nil
	}
	return o.store.LoadBlockState(cp - 1)
}

// ingestQueued drains the four end-user RPC topics exactly once, per §5
// "queue -> planner drains each topic exactly once per block", normalizing
// each payload into the RPC processor.
func (o *Orchestrator) ingestQueued() error {
	for _, raw := range o.queue.DrainAll(queue.TopicRegisterUser) {
		var msg rpc.RegisterUserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			o.logger.Printf("drop malformed register_user message: %v", err)
			continue
		}
		o.processor.IngestRegisterUser(msg)
		o.countRPC("register_user")
	}
	for _, raw := range o.queue.DrainAll(queue.TopicClaimDeposit) {
		var msg rpc.ClaimDepositMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			o.logger.Printf("drop malformed claim_deposit message: %v", err)
			continue
		}
		if err := o.processor.IngestClaimDeposit(msg); err != nil {
			o.logger.Printf("reject claim_deposit: %v", err)
			continue
		}
		o.countRPC("claim_deposit")
	}
	for _, raw := range o.queue.DrainAll(queue.TopicTokenTransfer) {
		var msg rpc.TransferMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			o.logger.Printf("drop malformed token_transfer message: %v", err)
			continue
		}
		if err := o.processor.IngestTransfer(msg); err != nil {
			o.logger.Printf("reject token_transfer: %v", err)
			continue
		}
		o.countRPC("token_transfer")
	}
	for _, raw := range o.queue.DrainAll(queue.TopicAddWithdrawal) {
		var msg rpc.AddWithdrawalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			o.logger.Printf("drop malformed add_withdrawal message: %v", err)
			continue
		}
		if err := o.processor.IngestAddWithdrawal(msg); err != nil {
			o.logger.Printf("reject add_withdrawal: %v", err)
			continue
		}
		o.countRPC("add_withdrawal")
	}
	return nil
}

func (o *Orchestrator) countRPC(kind string) {
	if o.metrics != nil {
		o.metrics.RPCRequestsHandled.WithLabelValues(kind).Inc()
	}
}

// ingestPendingWithdrawals appends one ProcessWithdrawalRequest signal for
// every withdrawal added in a previous block but not yet processed
// (prev.NextProcessWithdrawalID..prev.NextAddWithdrawalID), and returns
// their records for this checkpoint's L1 settlement payout. spec.md §6
// names no queue topic for process-withdrawal; draining the full
// previous-block backlog every tick is this coordinator's own scheduling
// choice, consistent with §4.2's reset
// invariant since it always empties the backlog before the next tick's
// reset check runs.
func (o *Orchestrator) ingestPendingWithdrawals(cp uint64, prev state.BlockState) ([]state.L1Withdrawal, error) {
	if cp <= 1 {
		return nil, nil
	}
	var out []state.L1Withdrawal
	for id := prev.NextProcessWithdrawalID; id < prev.NextAddWithdrawalID; id++ {
		w, err := o.store.GetWithdrawal(cp-1, id)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load pending withdrawal %d: %w", id, err)
		}
		out = append(out, w)
		o.processor.IngestProcessWithdrawal(rpc.ProcessWithdrawalMessage{})
	}
	return out, nil
}

// ingestDeposits scans watchScript (the current block UTXO's locking
// script, i.e. the "prior block address" of spec.md §4.6) for newly
// observed p2pkh deposits, records each as an AddDeposit request, and
// returns the set to sweep into this checkpoint's settlement transaction.
func (o *Orchestrator) ingestDeposits(ctx context.Context, cp uint64, watchScript []byte) ([]l1tx.DepositUTXO, error) {
	if watchScript == nil {
		return nil, nil
	}
	candidates, err := o.l1.GetUTXOs(ctx, watchScript)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: scan deposit utxos: %w", err)
	}
	var swept []l1tx.DepositUTXO
	for _, c := range candidates {
		if cp > 1 {
			if _, err := o.store.FindDepositByTxid(cp-1, c.UTXO.Txid); err == nil {
				continue
			}
		}
		fundingTx, err := o.l1.GetRawTx(ctx, c.UTXO.Txid)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: fetch funding tx for deposit %s: %w", c.UTXO.Txid.Hex(), err)
		}
		utxo := c.UTXO
		utxo.FundingTx = fundingTx
		o.processor.IngestAddDeposit(rpc.AddDepositMessage{Value: utxo.Value, Txid: utxo.Txid, PublicKey: c.PublicKey})
		swept = append(swept, utxo)
	}
	return swept, nil
}

// awaitProof is the "wait_for_block_proving_jobs(checkpoint)" suspension
// point of spec.md §5: it blocks, polling at cfg.PollInterval, until id's
// proof bytes are durably readable or ctx is canceled.
func (o *Orchestrator) awaitProof(ctx context.Context, id jobid.ID) ([]byte, error) {
	interval := o.cfg.PollInterval.Duration
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		raw, err := o.proofs.GetProof(id)
		if err == nil {
			return raw, nil
		}
		if err != proofstore.ErrNotFound {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// submitWithRetry calls L1Node.SendRawTx, making up to cfg.L1RetryAttempts
// attempts in all with cfg.L1RetryBackoff between attempts, per
// spec.md §5/§7: "network timeouts on L1 retry with bounded backoff
// (three attempts then fatal)."
func (o *Orchestrator) submitWithRetry(ctx context.Context, tx *wire.MsgTx) (state.Hash256, error) {
	attempts := o.cfg.L1RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := o.cfg.L1RetryBackoff.Duration
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		txid, err := o.l1.SendRawTx(ctx, tx)
		if err == nil {
			return txid, nil
		}
		lastErr = err
		o.logger.Printf("L1 submit attempt %d/%d failed: %v", i+1, attempts, err)
		if o.metrics != nil {
			o.metrics.L1SubmitRetries.Inc()
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return state.Hash256{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return state.Hash256{}, fmt.Errorf("orchestrator: submit L1 tx failed after %d attempts: %w", attempts, lastErr)
}

// hash160Of is SHA256 then RIPEMD160 of script, the standard Bitcoin
// script-hash digest the p2sh change output locks to.
func hash160Of(script []byte) (state.Hash160, error) {
	sum := btcutil.Hash160(script)
	var out state.Hash160
	if len(sum) != len(out) {
		return state.Hash160{}, fmt.Errorf("orchestrator: unexpected hash160 length %d", len(sum))
	}
	copy(out[:], sum)
	return out, nil
}
