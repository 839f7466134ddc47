package service

import (
	"errors"
	"fmt"

	"github.com/akshaysangma/irec-fractionalizer/internal/model"
)

// Error kinds. Every failure returned by the services matches exactly one of
// these with errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid tokenization request")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrInvalidAmount       = errors.New("purchase amount must be positive")

	ErrMint               = errors.New("mint failed")
	ErrOwnershipTransfer  = errors.New("ownership transfer failed")
	ErrApproval           = errors.New("marketplace approval failed")
	ErrDeposit            = errors.New("reserve deposit failed")
	ErrPriceConfiguration = errors.New("price configuration failed")

	ErrPriceRead          = errors.New("unit price read failed")
	ErrPurchaseSimulation = errors.New("purchase simulation failed")
	ErrPurchaseSubmit     = errors.New("purchase submission failed")

	// ErrMissingStepInput marks a sequencing failure: an earlier step's output is absent.
	ErrMissingStepInput = errors.New("missing step input")
)

// StepError reports a failed chain flow step.
//
// SideEffects is false when nothing irreversible happened and the flow can be
// retried from scratch. When true, earlier writes were confirmed or the failing
// write was broadcast, and the caller should resume from Checkpoint instead.
type StepError struct {
	Kind          error
	Step          StepName
	LastConfirmed StepName
	SideEffects   bool
	PendingTx     *model.TxHandle
	Checkpoint    *Checkpoint
	Err           error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: step %s", e.Kind, e.Step)
	if e.LastConfirmed != "" {
		msg += fmt.Sprintf(" (last confirmed step %s)", e.LastConfirmed)
	}
	if e.PendingTx != nil {
		msg += fmt.Sprintf(" (transaction %s may still be mined)", e.PendingTx.Hash)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AsStepError reports whether err is a step failure.
func AsStepError(err error) (*StepError, bool) {
	var serr *StepError
	ok := errors.As(err, &serr)
	return serr, ok
}
