package connector

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoWallet       = errors.New("no wallet configured")
	ErrRead           = errors.New("contract read failed")
	ErrSimulation     = errors.New("transaction simulation failed")
	ErrSubmit         = errors.New("transaction submission failed")
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
	ErrReverted       = errors.New("transaction reverted")
)

// SimulationError carries the revert reason of a write that would fail
type SimulationError struct {
	Contract string
	Method   string
	Reason   string
	Err      error
}

func (e *SimulationError) Error() string {
	msg := fmt.Sprintf("simulation of %s.%s failed", e.Contract, e.Method)
	switch {
	case e.Reason != "":
		msg += ": execution reverted: " + e.Reason
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SimulationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSimulation}
	}
	return []error{ErrSimulation, e.Err}
}

// ContractRef binds a deployed contract address to its ABI
type ContractRef struct {
	Name    string
	Address common.Address
	ABI     *abi.ABI
}

// PreparedCall is a write that passed simulation and is ready to be signed and sent
type PreparedCall struct {
	Contract ContractRef
	Method   string
	Args     []interface{}
	From     common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
}

// ChainGateway defines the read/simulate/write/wait boundary to the chain
type ChainGateway interface {
	// ActiveAccount returns the signing account; ErrNoWallet when none is available
	ActiveAccount(ctx context.Context) (common.Address, error)

	// ReadState calls a view method and returns its decoded outputs
	ReadState(ctx context.Context, contract ContractRef, method string, args ...interface{}) ([]interface{}, error)

	// SimulateWrite dry-runs a write from account with an optional payable value
	SimulateWrite(ctx context.Context, contract ContractRef, method string, account common.Address, value *big.Int, args ...interface{}) (*PreparedCall, error)

	// SubmitWrite signs and broadcasts a prepared call
	SubmitWrite(ctx context.Context, call *PreparedCall) (*model.TxHandle, error)

	// AwaitReceipt blocks until the transaction is mined and confirmed
	AwaitReceipt(ctx context.Context, tx *model.TxHandle) (*model.Receipt, error)
}

// TransferHistory reads fraction token Transfer events in block windows
type TransferHistory interface {
	// LatestBlockNumber retrieves the latest block number from the chain
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// TransferLogs returns the Transfer events of contract between two blocks, inclusive
	TransferLogs(ctx context.Context, contract ContractRef, fromBlock, toBlock uint64) ([]model.TransferRecord, error)
}

// ReadBigInt reads a single uint256 output
func ReadBigInt(ctx context.Context, gw ChainGateway, contract ContractRef, method string, args ...interface{}) (*big.Int, error) {
	out, err := gw.ReadState(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}

	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s.%s returned %d values", ErrRead, contract.Name, method, len(out))
	}

	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s.%s returned %T, want *big.Int", ErrRead, contract.Name, method, out[0])
	}

	return v, nil
}
