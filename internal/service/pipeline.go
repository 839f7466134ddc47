package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// StepName identifies a pipeline step
type StepName string

const (
	StepMint              StepName = "mint"
	StepAcquireOwnership  StepName = "acquire-ownership"
	StepApproveAndDeposit StepName = "approve-and-deposit"
	StepConfigurePrice    StepName = "configure-price"
	StepPurchase          StepName = "purchase"
)

// output is a value one step produces and a later step consumes.
type output string

const (
	outTokenID   output = "token_id"
	outOwnership output = "ownership_tx"
	outApproval  output = "approval_receipt"
	outDeposit   output = "deposit_tx"
	outPrice     output = "price_tx"
)

// Checkpoint holds the confirmed outputs of a pipeline run. It is returned
// inside a StepError and can be passed to Resume.
type Checkpoint struct {
	RunID           string          `json:"run_id"`
	CertificateID   string          `json:"certificate_id"`
	Completed       []StepName      `json:"completed"`
	TokenID         *big.Int        `json:"token_id,omitempty"`
	MintTx          *model.TxHandle `json:"mint_tx,omitempty"`
	OwnershipTx     *model.TxHandle `json:"ownership_tx,omitempty"`
	ApprovalTx      *model.TxHandle `json:"approval_tx,omitempty"`
	ApprovalReceipt *model.Receipt  `json:"approval_receipt,omitempty"`
	DepositTx       *model.TxHandle `json:"deposit_tx,omitempty"`
	PriceTx         *model.TxHandle `json:"price_tx,omitempty"`
	UnitPrice       *big.Int        `json:"unit_price,omitempty"`

	// PendingTx is a write of the failed step that was broadcast but whose
	// outcome is unknown. Resume settles it before submitting that write again.
	PendingTx *model.TxHandle `json:"pending_tx,omitempty"`
}

func (c *Checkpoint) has(o output) bool {
	switch o {
	case outTokenID:
		return c.TokenID != nil
	case outOwnership:
		return c.OwnershipTx != nil
	case outApproval:
		return c.ApprovalReceipt != nil && c.ApprovalReceipt.Status
	case outDeposit:
		return c.DepositTx != nil
	case outPrice:
		return c.PriceTx != nil
	}
	return false
}

func (c *Checkpoint) done(step StepName) bool {
	for _, s := range c.Completed {
		if s == step {
			return true
		}
	}
	return false
}

// LastConfirmed is the most recent completed step, empty when none.
func (c *Checkpoint) LastConfirmed() StepName {
	if len(c.Completed) == 0 {
		return ""
	}
	return c.Completed[len(c.Completed)-1]
}

// committed reports whether any irreversible write of this run was confirmed.
func (c *Checkpoint) committed() bool {
	return len(c.Completed) > 0 || c.ApprovalReceipt != nil
}

// PipelineResult is the output of a completed tokenization run
type PipelineResult struct {
	RunID           string          `json:"run_id"`
	CertificateID   string          `json:"certificate_id"`
	TokenID         *big.Int        `json:"token_id"`
	MintTx          *model.TxHandle `json:"mint_tx"`
	OwnershipTx     *model.TxHandle `json:"ownership_tx"`
	ApprovalReceipt *model.Receipt  `json:"approval_receipt"`
	DepositTx       *model.TxHandle `json:"deposit_tx"`
	PriceTx         *model.TxHandle `json:"price_tx"`
	UnitPrice       *big.Int        `json:"unit_price"`
	Steps           []StepName      `json:"steps"`
}

// StepStatus is the state reported to a ProgressFunc
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepConfirmed StepStatus = "confirmed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepProgress is one progress notification
type StepProgress struct {
	RunID  string
	Step   StepName
	Index  int
	Total  int
	Status StepStatus
	Err    error
}

// ProgressFunc observes pipeline progress. It is called synchronously.
type ProgressFunc func(StepProgress)

// step is one ordered unit of pipeline work. requires lists the outputs of
// earlier steps it consumes; run stores its own outputs on the checkpoint.
type step struct {
	name     StepName
	kind     error
	requires []output
	run      func(ctx context.Context, r *pipelineRun) error
}

// pipelineRun is the state of one invocation
type pipelineRun struct {
	account    common.Address
	request    model.TokenizationRequest
	price      *big.Int
	cert       model.Certificate
	checkpoint *Checkpoint
	logger     *zap.Logger
}

func (s step) missing(cp *Checkpoint) error {
	for _, o := range s.requires {
		if !cp.has(o) {
			return fmt.Errorf("%w: %s requires %s", ErrMissingStepInput, s.name, o)
		}
	}
	return nil
}

// runSteps executes steps in order, skipping those already completed on the
// checkpoint, and stops at the first failure.
func runSteps(ctx context.Context, steps []step, r *pipelineRun, progress ProgressFunc) error {
	notify := func(i int, st StepName, status StepStatus, err error) {
		if progress != nil {
			progress(StepProgress{
				RunID:  r.checkpoint.RunID,
				Step:   st,
				Index:  i,
				Total:  len(steps),
				Status: status,
				Err:    err,
			})
		}
	}

	for i, st := range steps {
		if r.checkpoint.done(st.name) {
			r.logger.Info("Skipping confirmed step", zap.String("step", string(st.name)))
			notify(i, st.name, StepSkipped, nil)
			continue
		}

		if err := st.missing(r.checkpoint); err != nil {
			serr := newStepError(st, r.checkpoint, err)
			notify(i, st.name, StepFailed, serr)
			return serr
		}

		// Cancellation stops the run between steps. A started step runs to its end.
		if err := ctx.Err(); err != nil {
			serr := newStepError(st, r.checkpoint, err)
			notify(i, st.name, StepFailed, serr)
			return serr
		}

		notify(i, st.name, StepStarted, nil)
		r.logger.Info("Running pipeline step",
			zap.String("step", string(st.name)),
			zap.Int("index", i+1),
			zap.Int("total", len(steps)))

		if err := st.run(context.WithoutCancel(ctx), r); err != nil {
			serr := newStepError(st, r.checkpoint, err)
			notify(i, st.name, StepFailed, serr)
			return serr
		}

		r.checkpoint.Completed = append(r.checkpoint.Completed, st.name)
		r.checkpoint.PendingTx = nil
		notify(i, st.name, StepConfirmed, nil)
	}

	return nil
}

func newStepError(st step, cp *Checkpoint, err error) *StepError {
	serr := &StepError{
		Kind:          st.kind,
		Step:          st.name,
		LastConfirmed: cp.LastConfirmed(),
		SideEffects:   cp.committed(),
		Checkpoint:    cp,
		Err:           err,
	}

	var ke *kindError
	if errors.As(err, &ke) {
		serr.Kind = ke.kind
		serr.Err = ke.err
	}

	var wf *writeFailure
	if errors.As(err, &wf) && wf.broadcast() {
		serr.SideEffects = true
		serr.PendingTx = wf.tx
		if !errors.Is(err, connector.ErrReverted) {
			cp.PendingTx = wf.tx
		}
	}

	return serr
}

// kindError overrides the failure kind of the step that returns it.
type kindError struct {
	kind error
	err  error
}

func (k *kindError) Error() string { return k.err.Error() }

func (k *kindError) Unwrap() error { return k.err }
