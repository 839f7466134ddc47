package service

import (
	"context"
	"math/big"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// writeStage is how far a write got before it failed.
type writeStage int

const (
	stageSimulate writeStage = iota
	stageSubmit
	stageConfirm
)

// writeFailure wraps a gateway error with the stage it happened at and, once
// broadcast, the transaction handle.
type writeFailure struct {
	stage writeStage
	tx    *model.TxHandle
	err   error
}

func (w *writeFailure) Error() string { return w.err.Error() }

func (w *writeFailure) Unwrap() error { return w.err }

// broadcast reports whether the transaction left this process.
func (w *writeFailure) broadcast() bool { return w.stage == stageConfirm }

// chainWriter runs the simulate, submit, await sequence for one write
type chainWriter struct {
	gateway connector.ChainGateway
	logger  *zap.Logger
}

func (w chainWriter) write(
	ctx context.Context,
	contract connector.ContractRef,
	method string,
	account common.Address,
	value *big.Int,
	args ...interface{},
) (*model.TxHandle, *model.Receipt, error) {
	tx, err := w.submit(ctx, contract, method, account, value, args...)
	if err != nil {
		return nil, nil, err
	}

	receipt, err := w.await(ctx, tx)
	if err != nil {
		return tx, nil, err
	}

	return tx, receipt, nil
}

// await waits for a broadcast transaction. The wait is detached from ctx
// cancellation and ends only with a receipt or the gateway's receipt timeout.
func (w chainWriter) await(ctx context.Context, tx *model.TxHandle) (*model.Receipt, error) {
	receipt, err := w.gateway.AwaitReceipt(context.WithoutCancel(ctx), tx)
	if err != nil {
		w.logger.Warn("Transaction not confirmed",
			zap.String("method", tx.Method),
			zap.String("hash", tx.Hash),
			zap.Error(err))
		return nil, &writeFailure{stage: stageConfirm, tx: tx, err: err}
	}

	return receipt, nil
}

// submit simulates then broadcasts without waiting for the receipt.
func (w chainWriter) submit(
	ctx context.Context,
	contract connector.ContractRef,
	method string,
	account common.Address,
	value *big.Int,
	args ...interface{},
) (*model.TxHandle, error) {
	call, err := w.gateway.SimulateWrite(ctx, contract, method, account, value, args...)
	if err != nil {
		return nil, &writeFailure{stage: stageSimulate, err: err}
	}

	tx, err := w.gateway.SubmitWrite(ctx, call)
	if err != nil {
		return nil, &writeFailure{stage: stageSubmit, err: err}
	}

	w.logger.Debug("Write submitted",
		zap.String("contract", contract.Name),
		zap.String("method", method),
		zap.String("hash", tx.Hash))

	return tx, nil
}
