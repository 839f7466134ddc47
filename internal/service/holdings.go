package service

import (
	"context"
	"fmt"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"go.uber.org/zap"
)

// HoldingsService reads balances and transfer history of the fraction token
type HoldingsService struct {
	gateway   connector.ChainGateway
	history   connector.TransferHistory
	contracts *connector.Contracts
	config    *config.HistoryConfig
	logger    *zap.Logger
}

// NewHoldingsService creates the reader. history may be nil when the
// configured source is the contract's own getTransfers view.
func NewHoldingsService(
	gateway connector.ChainGateway,
	history connector.TransferHistory,
	contracts *connector.Contracts,
	cfg *config.HistoryConfig,
	logger *zap.Logger,
) *HoldingsService {
	return &HoldingsService{
		gateway:   gateway,
		history:   history,
		contracts: contracts,
		config:    cfg,
		logger:    logger,
	}
}

// Summary reads the active account's balance and share together with the
// reserve balance and the current unit price.
func (s *HoldingsService) Summary(ctx context.Context) (*model.AccountSummary, error) {
	account, err := s.gateway.ActiveAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active account: %w", err)
	}

	balance, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Token, connector.MethodBalanceOf, account)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	share, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Token, connector.MethodPercentOwnership, account)
	if err != nil {
		return nil, fmt.Errorf("failed to read ownership share: %w", err)
	}

	reserve, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Token, connector.MethodBalanceOf, s.contracts.Marketplace.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read reserve balance: %w", err)
	}

	price, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Marketplace, connector.MethodTokenPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPriceRead, err)
	}

	return &model.AccountSummary{
		Address:          account.Hex(),
		Balance:          balance,
		PercentOwnership: share,
		ReserveBalance:   reserve,
		UnitPrice:        price,
	}, nil
}

// Transfers lists fraction token transfers, oldest first.
func (s *HoldingsService) Transfers(ctx context.Context) ([]model.TransferRecord, error) {
	if s.config.Source == "logs" {
		return s.scanTransferLogs(ctx)
	}

	out, err := s.gateway.ReadState(ctx, s.contracts.Token, connector.MethodGetTransfers)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfers: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", connector.ErrRead, connector.MethodGetTransfers, len(out))
	}

	return connector.DecodeTransfers(out[0])
}

// scanTransferLogs walks Transfer logs from the configured start block to the
// chain head in windows of at most MaxBlockRange blocks.
func (s *HoldingsService) scanTransferLogs(ctx context.Context) ([]model.TransferRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("transfer log history is not available")
	}

	latest, err := s.history.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	start := s.config.StartBlock
	if start > latest {
		return []model.TransferRecord{}, nil
	}

	s.logger.Info("Scanning transfer logs",
		zap.Uint64("from", start),
		zap.Uint64("to", latest))

	records := make([]model.TransferRecord, 0)
	for from := start; from <= latest; from += s.config.MaxBlockRange {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		to := min(from+s.config.MaxBlockRange-1, latest)

		batch, err := s.history.TransferLogs(ctx, s.contracts.Token, from, to)
		if err != nil {
			s.logger.Error("Failed to scan block range",
				zap.Uint64("from", from),
				zap.Uint64("to", to),
				zap.Error(err))
			return nil, err
		}

		s.logger.Debug("Scanned block range",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("count", len(batch)))

		records = append(records, batch...)
	}

	return records, nil
}
