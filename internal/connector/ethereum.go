package connector

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultReceiptTimeout = 3 * time.Minute
	gasHeadroomPercent    = 120
)

// EthereumGateway implements the ChainGateway interface for EVM chains
type EthereumGateway struct {
	config   *config.EthereumConfig
	client   *ethclient.Client
	wsclient *ethclient.Client
	wallet   *Wallet
	chainID  *big.Int
	logger   *zap.Logger

	// serialises nonce assignment between concurrent flows sharing the wallet
	nonceMu sync.Mutex
}

// NewEthereumGateway creates a new Ethereum gateway. wallet may be nil for read-only use.
func NewEthereumGateway(cfg *config.EthereumConfig, wallet *Wallet, logger *zap.Logger) *EthereumGateway {
	return &EthereumGateway{
		config:  cfg,
		wallet:  wallet,
		chainID: big.NewInt(cfg.ChainID),
		logger:  logger,
	}
}

// Connect establishes connection to Ethereum node
func (e *EthereumGateway) Connect(ctx context.Context) error {
	var err error

	e.client, err = ethclient.DialContext(ctx, e.config.NodeURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	if e.config.WebsocketURL != "" {
		e.wsclient, err = ethclient.DialContext(ctx, e.config.WebsocketURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Ethereum WebSocket: %w", err)
		}
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch chainID: %w", err)
	}

	if chainID.Cmp(e.chainID) != 0 {
		return fmt.Errorf("node chain id %s does not match configured chain id %s", chainID, e.chainID)
	}

	fields := []zap.Field{
		zap.String("node_url", e.config.NodeURL),
		zap.String("websocket_url", e.config.WebsocketURL),
		zap.String("chain_id", chainID.String()),
	}
	if e.wallet != nil {
		fields = append(fields, zap.String("account", e.wallet.Address().Hex()))
	}
	e.logger.Info("Connected to Ethereum node", fields...)

	return nil
}

// Close closes the connection to Ethereum node
func (e *EthereumGateway) Close() error {
	if e.client != nil {
		e.client.Close()
	}

	if e.wsclient != nil {
		e.wsclient.Close()
	}

	e.logger.Info("Disconnected from Ethereum Node")
	return nil
}

func (e *EthereumGateway) ActiveAccount(_ context.Context) (common.Address, error) {
	if e.wallet == nil {
		return common.Address{}, ErrNoWallet
	}

	return e.wallet.Address(), nil
}

func (e *EthereumGateway) ReadState(ctx context.Context, contract ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack %s.%s: %w", ErrRead, contract.Name, method, err)
	}

	to := contract.Address
	msg := ethereum.CallMsg{To: &to, Data: data}
	if e.wallet != nil {
		msg.From = e.wallet.Address()
	}

	res, err := e.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrRead, contract.Name, method, err)
	}

	out, err := contract.ABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unpack %s.%s: %w", ErrRead, contract.Name, method, err)
	}

	return out, nil
}

func (e *EthereumGateway) SimulateWrite(
	ctx context.Context,
	contract ContractRef,
	method string,
	account common.Address,
	value *big.Int,
	args ...interface{},
) (*PreparedCall, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, &SimulationError{
			Contract: contract.Name,
			Method:   method,
			Err:      fmt.Errorf("failed to pack arguments: %w", err),
		}
	}

	to := contract.Address
	msg := ethereum.CallMsg{From: account, To: &to, Value: value, Data: data}

	_, err = e.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, &SimulationError{Contract: contract.Name, Method: method, Reason: revertReason(err), Err: err}
	}

	gas, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &SimulationError{Contract: contract.Name, Method: method, Reason: revertReason(err), Err: err}
	}

	e.logger.Debug("Simulated write",
		zap.String("contract", contract.Name),
		zap.String("method", method),
		zap.String("from", account.Hex()),
		zap.Uint64("gas", gas))

	return &PreparedCall{
		Contract: contract,
		Method:   method,
		Args:     args,
		From:     account,
		Value:    value,
		Data:     data,
		Gas:      gas * gasHeadroomPercent / 100,
	}, nil
}

func (e *EthereumGateway) SubmitWrite(ctx context.Context, call *PreparedCall) (*model.TxHandle, error) {
	if e.wallet == nil {
		return nil, ErrNoWallet
	}

	if call.From != e.wallet.Address() {
		return nil, fmt.Errorf("%w: call prepared for %s but wallet is %s", ErrSubmit, call.From.Hex(), e.wallet.Address().Hex())
	}

	e.nonceMu.Lock()
	defer e.nonceMu.Unlock()

	tx, err := e.buildTransaction(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmit, err)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.wallet.key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign transaction: %w", ErrSubmit, err)
	}

	err = e.client.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrSubmit, call.Contract.Name, call.Method, err)
	}

	handle := &model.TxHandle{
		Hash:        signed.Hash().Hex(),
		From:        call.From.Hex(),
		To:          call.Contract.Address.Hex(),
		Method:      call.Method,
		Value:       call.Value,
		SubmittedAt: time.Now().UTC(),
	}

	e.logger.Info("Submitted transaction",
		zap.String("hash", handle.Hash),
		zap.String("contract", call.Contract.Name),
		zap.String("method", call.Method),
		zap.Uint64("nonce", signed.Nonce()))

	return handle, nil
}

// buildTransaction prices the call as an EIP-1559 transaction, or a legacy one
// when the chain reports no base fee.
func (e *EthereumGateway) buildTransaction(ctx context.Context, call *PreparedCall) (*types.Transaction, error) {
	nonce, err := e.client.PendingNonceAt(ctx, call.From)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	head, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest header: %w", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.Contract.Address

	if head.BaseFee == nil {
		gasPrice, err := e.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}

		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      call.Gas,
			To:       &to,
			Value:    value,
			Data:     call.Data,
		}), nil
	}

	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}

	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       call.Gas,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	}), nil
}

// AwaitReceipt waits for the receipt and the configured confirmation blocks.
// Once a transaction is broadcast only the receipt timeout ends the wait, so
// cancelling ctx does not abandon it. Exceeding the timeout returns
// ErrReceiptTimeout; the transaction may still be mined later.
func (e *EthereumGateway) AwaitReceipt(ctx context.Context, tx *model.TxHandle) (*model.Receipt, error) {
	timeout := e.config.ReceiptTimeout
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	hash := common.HexToHash(tx.Hash)
	ticks, stop := e.blockTicks(waitCtx)
	defer func() { stop() }()

	for {
		receipt, err := e.checkReceipt(waitCtx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			e.logger.Info("Transaction confirmed",
				zap.String("hash", receipt.TxHash),
				zap.Uint64("block", receipt.BlockNumber),
				zap.Uint64("gas_used", receipt.GasUsed))
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, tx.Hash, timeout)

		case _, ok := <-ticks:
			if !ok && waitCtx.Err() == nil {
				stop()
				ticks, stop = e.pollTicks(waitCtx)
			}
		}
	}
}

// checkReceipt returns nil, nil while the transaction is pending or unconfirmed.
func (e *EthereumGateway) checkReceipt(ctx context.Context, hash common.Hash) (*model.Receipt, error) {
	r, err := e.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("Failed to fetch receipt, will retry",
				zap.String("hash", hash.Hex()),
				zap.Error(err))
		}
		return nil, nil
	}

	if r.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: %s in block %d", ErrReverted, hash.Hex(), r.BlockNumber.Uint64())
	}

	if e.config.ConfirmationBlocks > 0 {
		latest, err := e.client.BlockNumber(ctx)
		if err != nil || latest < r.BlockNumber.Uint64()+e.config.ConfirmationBlocks {
			return nil, nil
		}
	}

	return &model.Receipt{
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber.Uint64(),
		BlockHash:   r.BlockHash.Hex(),
		GasUsed:     r.GasUsed,
		Status:      r.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// blockTicks signals whenever a new block may exist. It follows new heads over the
// websocket connection when there is one and polls otherwise.
func (e *EthereumGateway) blockTicks(ctx context.Context) (<-chan uint64, func()) {
	if e.wsclient != nil {
		ticks, stop, err := e.subscribeToNewBlock(ctx)
		if err == nil {
			return ticks, stop
		}
		e.logger.Warn("Falling back to receipt polling", zap.Error(err))
	}

	return e.pollTicks(ctx)
}

func (e *EthereumGateway) subscribeToNewBlock(ctx context.Context) (<-chan uint64, func(), error) {
	headers := make(chan *types.Header)
	sub, err := e.wsclient.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to new blocks: %w", err)
	}

	blockNumbers := make(chan uint64, 1)
	done := make(chan struct{})

	go func() {
		defer close(blockNumbers)

		for {
			select {
			case err := <-sub.Err():
				if err != nil {
					e.logger.Error("Subscription error", zap.Error(err))
				}
				return

			case header := <-headers:
				blockNumber := header.Number.Uint64()
				e.logger.Debug("New block detected", zap.Uint64("block_number", blockNumber))

				select {
				case blockNumbers <- blockNumber:
				default:
				}

			case <-done:
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			sub.Unsubscribe()
		})
	}

	return blockNumbers, stop, nil
}

func (e *EthereumGateway) pollTicks(ctx context.Context) (<-chan uint64, func()) {
	interval := e.config.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	ticks := make(chan uint64, 1)
	done := make(chan struct{})

	go func() {
		defer close(ticks)

		for {
			select {
			case <-ticker.C:
				select {
				case ticks <- 0:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			ticker.Stop()
		})
	}

	return ticks, stop
}

// LatestBlockNumber retrieves the latest block Number
func (e *EthereumGateway) LatestBlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest block number: %w", err)
	}

	return blockNumber, nil
}

// TransferLogs retrieves Transfer events and stamps them with their block time
func (e *EthereumGateway) TransferLogs(ctx context.Context, contract ContractRef, fromBlock, toBlock uint64) ([]model.TransferRecord, error) {
	event, ok := contract.ABI.Events[EventTransfer]
	if !ok {
		return nil, fmt.Errorf("%s ABI has no %s event", contract.Name, EventTransfer)
	}

	logs, err := e.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{contract.Address},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs for blocks %d-%d: %w", fromBlock, toBlock, err)
	}

	timestamps := make(map[uint64]uint64)
	records := make([]model.TransferRecord, 0, len(logs))

	for _, lg := range logs {
		if len(lg.Topics) != 3 {
			continue
		}

		values, err := contract.ABI.Unpack(EventTransfer, lg.Data)
		if err != nil || len(values) != 1 {
			e.logger.Warn("Skipping undecodable transfer log",
				zap.String("hash", lg.TxHash.Hex()),
				zap.Uint("index", lg.Index))
			continue
		}

		amount, ok := values[0].(*big.Int)
		if !ok {
			continue
		}

		ts, ok := timestamps[lg.BlockNumber]
		if !ok {
			header, err := e.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("failed to fetch block %d: %w", lg.BlockNumber, err)
			}
			ts = header.Time
			timestamps[lg.BlockNumber] = ts
		}

		records = append(records, model.TransferRecord{
			From:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			To:        common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			Amount:    amount,
			Timestamp: ts,
			TxHash:    lg.TxHash.Hex(),
		})
	}

	return records, nil
}
