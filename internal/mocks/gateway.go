// Package mocks holds in-memory doubles of the chain gateway and event publisher.
package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Gateway operations recorded by MockChainGateway.
const (
	OpAccount  = "account"
	OpRead     = "read"
	OpSimulate = "simulate"
	OpSubmit   = "submit"
	OpAwait    = "await"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op       string
	Contract string
	Method   string
	Args     []interface{}
	Value    *big.Int
	TxHash   string
}

// MockChainGateway mocks the chain gateway for testing purposes.
// Failures are injected per method name; reads return the values set with SetRead.
type MockChainGateway struct {
	sync.Mutex

	Account    common.Address
	AccountErr error

	reads       map[string][]interface{}
	readErrs    map[string]error
	simulateErr map[string]error
	submitErr   map[string]error
	receiptErr  map[string]error

	// OnConfirm runs when a transaction's receipt is returned, e.g. to bump mintedCount.
	OnConfirm func(m *MockChainGateway, method string)

	// OnAwait runs without the lock at the start of every receipt wait. A non-nil
	// result is returned in place of the receipt.
	OnAwait func(ctx context.Context, tx *model.TxHandle) error

	calls   []Call
	pending map[string]string
	txCount int64
	block   uint64
}

// NewMockChainGateway creates mock gateway with the given active account.
func NewMockChainGateway(account common.Address) *MockChainGateway {
	return &MockChainGateway{
		Account:     account,
		reads:       make(map[string][]interface{}),
		readErrs:    make(map[string]error),
		simulateErr: make(map[string]error),
		submitErr:   make(map[string]error),
		receiptErr:  make(map[string]error),
		pending:     make(map[string]string),
		block:       100,
	}
}

// SetRead sets the outputs returned for method.
func (m *MockChainGateway) SetRead(method string, values ...interface{}) {
	m.Lock()
	defer m.Unlock()

	m.reads[method] = values
}

// SetReadLocked is SetRead for use inside OnConfirm, where the lock is already held.
func (m *MockChainGateway) SetReadLocked(method string, values ...interface{}) {
	m.reads[method] = values
}

// FailRead makes reads of method fail with err.
func (m *MockChainGateway) FailRead(method string, err error) {
	m.Lock()
	defer m.Unlock()

	m.readErrs[method] = err
}

// FailSimulate makes simulations of method fail with err.
func (m *MockChainGateway) FailSimulate(method string, err error) {
	m.Lock()
	defer m.Unlock()

	m.simulateErr[method] = err
}

// FailSubmit makes submissions of method fail with err.
func (m *MockChainGateway) FailSubmit(method string, err error) {
	m.Lock()
	defer m.Unlock()

	m.submitErr[method] = err
}

// FailReceipt makes receipt waits for transactions of method fail with err.
func (m *MockChainGateway) FailReceipt(method string, err error) {
	m.Lock()
	defer m.Unlock()

	m.receiptErr[method] = err
}

func (m *MockChainGateway) record(c Call) {
	m.calls = append(m.calls, c)
}

// ActiveAccount returns the configured account.
func (m *MockChainGateway) ActiveAccount(_ context.Context) (common.Address, error) {
	m.Lock()
	defer m.Unlock()

	m.record(Call{Op: OpAccount})

	if m.AccountErr != nil {
		return common.Address{}, m.AccountErr
	}
	return m.Account, nil
}

// ReadState returns the values set with SetRead.
func (m *MockChainGateway) ReadState(_ context.Context, contract connector.ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	m.Lock()
	defer m.Unlock()

	m.record(Call{Op: OpRead, Contract: contract.Name, Method: method, Args: args})

	if err := m.readErrs[method]; err != nil {
		return nil, err
	}

	out, ok := m.reads[method]
	if !ok {
		return nil, fmt.Errorf("%w: no mock value for %s", connector.ErrRead, method)
	}
	return out, nil
}

// SimulateWrite returns a prepared call unless a failure was injected.
func (m *MockChainGateway) SimulateWrite(
	_ context.Context,
	contract connector.ContractRef,
	method string,
	account common.Address,
	value *big.Int,
	args ...interface{},
) (*connector.PreparedCall, error) {
	m.Lock()
	defer m.Unlock()

	m.record(Call{Op: OpSimulate, Contract: contract.Name, Method: method, Args: args, Value: value})

	if err := m.simulateErr[method]; err != nil {
		return nil, err
	}

	return &connector.PreparedCall{
		Contract: contract,
		Method:   method,
		Args:     args,
		From:     account,
		Value:    value,
		Gas:      21000,
	}, nil
}

// SubmitWrite returns a handle with a deterministic hash.
func (m *MockChainGateway) SubmitWrite(_ context.Context, call *connector.PreparedCall) (*model.TxHandle, error) {
	m.Lock()
	defer m.Unlock()

	m.record(Call{Op: OpSubmit, Contract: call.Contract.Name, Method: call.Method, Args: call.Args, Value: call.Value})

	if err := m.submitErr[call.Method]; err != nil {
		return nil, err
	}

	m.txCount++
	hash := common.BigToHash(big.NewInt(m.txCount)).Hex()
	m.pending[hash] = call.Method

	return &model.TxHandle{
		Hash:        hash,
		From:        call.From.Hex(),
		To:          call.Contract.Address.Hex(),
		Method:      call.Method,
		Value:       call.Value,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// AwaitReceipt confirms the transaction unless a failure was injected. Like a
// node client it fails with the context error once ctx is cancelled.
func (m *MockChainGateway) AwaitReceipt(ctx context.Context, tx *model.TxHandle) (*model.Receipt, error) {
	var hookErr error
	if m.OnAwait != nil {
		hookErr = m.OnAwait(ctx, tx)
	}

	m.Lock()
	defer m.Unlock()

	method, ok := m.pending[tx.Hash]
	m.record(Call{Op: OpAwait, Method: method, TxHash: tx.Hash})

	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", tx.Hash)
	}
	if hookErr != nil {
		return nil, hookErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.receiptErr[method]; err != nil {
		return nil, err
	}

	delete(m.pending, tx.Hash)
	m.block++

	if m.OnConfirm != nil {
		m.OnConfirm(m, method)
	}

	return &model.Receipt{
		TxHash:      tx.Hash,
		BlockNumber: m.block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(m.block)).Hex(),
		GasUsed:     21000,
		Status:      true,
	}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockChainGateway) Calls() []Call {
	m.Lock()
	defer m.Unlock()

	calls := make([]Call, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount counts recorded calls of op for method; an empty method matches all.
func (m *MockChainGateway) CallCount(op, method string) int {
	m.Lock()
	defer m.Unlock()

	n := 0
	for _, c := range m.calls {
		if c.Op == op && (method == "" || c.Method == method) {
			n++
		}
	}
	return n
}

// MockTransferHistory mocks the log based transfer reader.
type MockTransferHistory struct {
	sync.Mutex
	Latest  uint64
	Records map[uint64]model.TransferRecord // keyed by block number
	Err     error
	Windows [][2]uint64
}

// LatestBlockNumber returns Latest.
func (h *MockTransferHistory) LatestBlockNumber(_ context.Context) (uint64, error) {
	return h.Latest, h.Err
}

// TransferLogs returns the records whose block falls in the window.
func (h *MockTransferHistory) TransferLogs(_ context.Context, _ connector.ContractRef, fromBlock, toBlock uint64) ([]model.TransferRecord, error) {
	h.Lock()
	defer h.Unlock()

	h.Windows = append(h.Windows, [2]uint64{fromBlock, toBlock})
	if h.Err != nil {
		return nil, h.Err
	}

	var out []model.TransferRecord
	for b := fromBlock; b <= toBlock; b++ {
		if r, ok := h.Records[b]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}
