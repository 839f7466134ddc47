package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/publisher"
	"github.com/akshaysangma/irec-fractionalizer/internal/units"
	"go.uber.org/zap"
)

// PurchaseResult describes a submitted reserve purchase
type PurchaseResult struct {
	Tx        *model.TxHandle `json:"tx"`
	Receipt   *model.Receipt  `json:"receipt,omitempty"`
	Amount    int64           `json:"amount"`
	UnitPrice *big.Int        `json:"unit_price"`
	TotalCost *big.Int        `json:"total_cost"`
}

// PurchaseService buys fraction tokens from the marketplace reserve at the
// current on-chain price.
type PurchaseService struct {
	gateway   connector.ChainGateway
	contracts *connector.Contracts
	publisher publisher.Publisher
	writer    chainWriter
	logger    *zap.Logger
}

func NewPurchaseService(gateway connector.ChainGateway, contracts *connector.Contracts, pub publisher.Publisher, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		gateway:   gateway,
		contracts: contracts,
		publisher: pub,
		writer:    chainWriter{gateway: gateway, logger: logger},
		logger:    logger,
	}
}

// Execute submits purchaseFromReserve(amount) paying price × amount and returns
// once the transaction is broadcast.
func (s *PurchaseService) Execute(ctx context.Context, amount int64) (*PurchaseResult, error) {
	return s.execute(ctx, amount, false)
}

// ExecuteAndWait is Execute followed by waiting for the receipt.
func (s *PurchaseService) ExecuteAndWait(ctx context.Context, amount int64) (*PurchaseResult, error) {
	return s.execute(ctx, amount, true)
}

func (s *PurchaseService) execute(ctx context.Context, amount int64, wait bool) (*PurchaseResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	account, err := s.gateway.ActiveAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active account: %w", err)
	}
	logger := s.logger.With(zap.String("account", account.Hex()), zap.Int64("amount", amount))

	// The price is read per purchase and never cached.
	price, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Marketplace, connector.MethodTokenPrice)
	if err == nil && price.Sign() <= 0 {
		err = fmt.Errorf("marketplace price is not configured")
	}
	if err != nil {
		return nil, s.fail(ctx, account.Hex(), &StepError{Kind: ErrPriceRead, Step: StepPurchase, Err: err})
	}

	total := new(big.Int).Mul(price, big.NewInt(amount))
	logger.Info("Purchasing from reserve",
		zap.String("unit_price", units.FromEther(price)),
		zap.String("total_cost", units.FromEther(total)))

	tx, err := s.writer.submit(ctx, s.contracts.Marketplace, connector.MethodPurchaseReserve, account, total, big.NewInt(amount))
	if err != nil {
		return nil, s.fail(ctx, account.Hex(), purchaseError(err))
	}

	result := &PurchaseResult{
		Tx:        tx,
		Amount:    amount,
		UnitPrice: price,
		TotalCost: total,
	}

	publishEvent(ctx, s.publisher, s.logger, &model.Event{
		Type:    model.EventPurchaseSubmitted,
		Account: account.Hex(),
		TxHash:  tx.Hash,
		Data: map[string]string{
			"amount":     fmt.Sprint(amount),
			"unit_price": price.String(),
			"total_cost": total.String(),
		},
	})

	if !wait {
		return result, nil
	}

	receipt, err := s.writer.await(ctx, tx)
	if err != nil {
		return nil, s.fail(ctx, account.Hex(), &StepError{
			Kind:        ErrPurchaseSubmit,
			Step:        StepPurchase,
			SideEffects: true,
			PendingTx:   tx,
			Err:         err,
		})
	}

	result.Receipt = receipt
	logger.Info("Purchase confirmed",
		zap.String("hash", tx.Hash),
		zap.Uint64("block", receipt.BlockNumber))

	return result, nil
}

// purchaseError maps a write failure to its purchase error kind.
func purchaseError(err error) *StepError {
	serr := &StepError{Kind: ErrPurchaseSubmit, Step: StepPurchase, Err: err}

	var wf *writeFailure
	if errors.As(err, &wf) && wf.stage == stageSimulate {
		serr.Kind = ErrPurchaseSimulation
	}
	return serr
}

func (s *PurchaseService) fail(ctx context.Context, account string, serr *StepError) error {
	s.logger.Error("Reserve purchase failed", zap.Error(serr))

	event := &model.Event{
		Type:    model.EventPurchaseFailed,
		Account: account,
		Error:   serr.Error(),
	}
	if serr.PendingTx != nil {
		event.TxHash = serr.PendingTx.Hash
	}
	publishEvent(ctx, s.publisher, s.logger, event)

	return serr
}
