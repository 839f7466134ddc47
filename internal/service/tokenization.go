package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/publisher"
	"github.com/akshaysangma/irec-fractionalizer/internal/units"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CertificateSource resolves the certificate a request refers to
type CertificateSource interface {
	Certificate(id string) (model.Certificate, bool)
}

// TokenizationService turns a verified certificate into a priced fraction pool:
// mint, acquire ownership, approve and deposit into the reserve, set the price.
type TokenizationService struct {
	gateway   connector.ChainGateway
	contracts *connector.Contracts
	catalog   CertificateSource
	publisher publisher.Publisher
	writer    chainWriter
	seed      *big.Int
	decimals  int32
	logger    *zap.Logger
	steps     []step
}

func NewTokenizationService(
	gateway connector.ChainGateway,
	contracts *connector.Contracts,
	catalog CertificateSource,
	pub publisher.Publisher,
	cfg *config.TokenizationConfig,
	logger *zap.Logger,
) (*TokenizationService, error) {
	decimals := cfg.Decimals
	if decimals <= 0 {
		decimals = units.Decimals
	}

	seed, err := units.ToFixedPoint(cfg.ReserveSeed, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid tokenization.reserve_seed: %w", err)
	}
	if seed.Sign() <= 0 {
		return nil, fmt.Errorf("invalid tokenization.reserve_seed: must be positive")
	}

	s := &TokenizationService{
		gateway:   gateway,
		contracts: contracts,
		catalog:   catalog,
		publisher: pub,
		writer:    chainWriter{gateway: gateway, logger: logger},
		seed:      seed,
		decimals:  decimals,
		logger:    logger,
	}

	s.steps = []step{
		{name: StepMint, kind: ErrMint, run: s.mint},
		{name: StepAcquireOwnership, kind: ErrOwnershipTransfer, requires: []output{outTokenID}, run: s.acquireOwnership},
		{name: StepApproveAndDeposit, kind: ErrApproval, requires: []output{outOwnership}, run: s.approveAndDeposit},
		{name: StepConfigurePrice, kind: ErrPriceConfiguration, requires: []output{outDeposit}, run: s.configurePrice},
	}

	return s, nil
}

// ReserveSeed is the fixed-point quantity approved and deposited per run.
func (s *TokenizationService) ReserveSeed() *big.Int {
	return new(big.Int).Set(s.seed)
}

// Run validates the request and executes every step. On failure the error is a
// *StepError whose Checkpoint can be handed to Resume.
func (s *TokenizationService) Run(ctx context.Context, req model.TokenizationRequest, progress ProgressFunc) (*PipelineResult, error) {
	return s.execute(ctx, req, &Checkpoint{RunID: uuid.NewString()}, progress)
}

// Resume continues a failed run after its last confirmed step. Confirmed steps
// are never re-submitted.
func (s *TokenizationService) Resume(ctx context.Context, req model.TokenizationRequest, checkpoint *Checkpoint, progress ProgressFunc) (*PipelineResult, error) {
	if checkpoint == nil {
		return nil, fmt.Errorf("%w: checkpoint is required to resume", ErrInvalidRequest)
	}
	if checkpoint.CertificateID != "" && checkpoint.CertificateID != req.CertificateID {
		return nil, fmt.Errorf("%w: checkpoint belongs to certificate %s", ErrInvalidRequest, checkpoint.CertificateID)
	}

	cp := *checkpoint
	cp.Completed = append([]StepName(nil), checkpoint.Completed...)
	if cp.RunID == "" {
		cp.RunID = uuid.NewString()
	}

	return s.execute(ctx, req, &cp, progress)
}

func (s *TokenizationService) execute(ctx context.Context, req model.TokenizationRequest, cp *Checkpoint, progress ProgressFunc) (*PipelineResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	price, err := units.DecimalToFixedPoint(req.FractionPrice, s.decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest,
			&model.ValidationError{Fields: map[string]string{"fraction_price": err.Error()}})
	}

	cert, ok := s.catalog.Certificate(req.CertificateID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCertificateNotFound, req.CertificateID)
	}
	if !cert.Verified() {
		return nil, fmt.Errorf("%w: certificate %s is %s, only verified certificates can be tokenized",
			ErrInvalidRequest, cert.ID, cert.Status)
	}
	if req.TokenDescription == "" {
		req.TokenDescription = cert.DefaultDescription()
	}

	account, err := s.gateway.ActiveAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active account: %w", err)
	}

	cp.CertificateID = cert.ID
	logger := s.logger.With(
		zap.String("run_id", cp.RunID),
		zap.String("certificate_id", cert.ID),
		zap.String("account", account.Hex()))

	run := &pipelineRun{
		account:    account,
		request:    req,
		price:      price,
		cert:       cert,
		checkpoint: cp,
		logger:     logger,
	}

	logger.Info("Starting tokenization pipeline",
		zap.Int64("fraction_count", req.FractionCount),
		zap.String("fraction_price", req.FractionPrice.String()),
		zap.Int("completed_steps", len(cp.Completed)))

	err = runSteps(ctx, s.steps, run, s.observe(ctx, run, progress))
	if err != nil {
		logger.Error("Tokenization pipeline failed", zap.Error(err))
		return nil, err
	}

	result := &PipelineResult{
		RunID:           cp.RunID,
		CertificateID:   cert.ID,
		TokenID:         cp.TokenID,
		MintTx:          cp.MintTx,
		OwnershipTx:     cp.OwnershipTx,
		ApprovalReceipt: cp.ApprovalReceipt,
		DepositTx:       cp.DepositTx,
		PriceTx:         cp.PriceTx,
		UnitPrice:       cp.UnitPrice,
		Steps:           cp.Completed,
	}

	s.publish(ctx, &model.Event{
		Type:    model.EventPipelineCompleted,
		RunID:   cp.RunID,
		Account: account.Hex(),
		Data: map[string]string{
			"certificate_id": cert.ID,
			"token_id":       cp.TokenID.String(),
			"unit_price":     cp.UnitPrice.String(),
		},
	})

	logger.Info("Tokenization pipeline completed",
		zap.String("token_id", cp.TokenID.String()),
		zap.String("unit_price", cp.UnitPrice.String()))

	return result, nil
}

func (s *TokenizationService) mint(ctx context.Context, r *pipelineRun) error {
	tx, _, err := s.write(ctx, r, s.contracts.Certificate, connector.MethodMint, r.account)
	if err != nil {
		return err
	}
	r.checkpoint.MintTx = tx

	count, err := connector.ReadBigInt(ctx, s.gateway, s.contracts.Certificate, connector.MethodMintedCount)
	if err != nil {
		return fmt.Errorf("failed to resolve minted token id: %w", err)
	}
	if count.Sign() <= 0 {
		return fmt.Errorf("failed to resolve minted token id: minted count is %s", count)
	}

	r.checkpoint.TokenID = new(big.Int).Sub(count, big.NewInt(1))
	r.logger.Info("Certificate token minted",
		zap.String("token_id", r.checkpoint.TokenID.String()),
		zap.String("hash", tx.Hash))

	return nil
}

func (s *TokenizationService) acquireOwnership(ctx context.Context, r *pipelineRun) error {
	tx, _, err := s.write(ctx, r, s.contracts.Token, connector.MethodAcquireOwnership, r.checkpoint.TokenID)
	if err != nil {
		return err
	}

	r.checkpoint.OwnershipTx = tx
	return nil
}

// approveAndDeposit only deposits after the approval receipt confirmed; an
// approval confirmed by an earlier attempt is reused.
func (s *TokenizationService) approveAndDeposit(ctx context.Context, r *pipelineRun) error {
	if !r.checkpoint.has(outApproval) {
		tx, receipt, err := s.write(ctx, r, s.contracts.Token, connector.MethodApprove,
			s.contracts.Marketplace.Address, s.seed)
		r.checkpoint.ApprovalTx = tx
		if err != nil {
			return err
		}
		if receipt == nil || !receipt.Status {
			return fmt.Errorf("approval %s was not confirmed", tx.Hash)
		}
		r.checkpoint.ApprovalReceipt = receipt
	}

	tx, _, err := s.write(ctx, r, s.contracts.Marketplace, connector.MethodDepositToReserve, s.seed)
	if err != nil {
		return &kindError{kind: ErrDeposit, err: err}
	}

	r.checkpoint.DepositTx = tx
	r.logger.Info("Reserve seeded",
		zap.String("amount", units.FromFixedPoint(s.seed, s.decimals)),
		zap.String("hash", tx.Hash))

	return nil
}

func (s *TokenizationService) configurePrice(ctx context.Context, r *pipelineRun) error {
	tx, _, err := s.write(ctx, r, s.contracts.Marketplace, connector.MethodSetTokenPrice, r.price)
	if err != nil {
		return err
	}

	r.checkpoint.PriceTx = tx
	r.checkpoint.UnitPrice = r.price
	return nil
}

// write performs one pipeline write. A write of the same method left pending
// by an earlier attempt is settled first: its receipt is adopted when it
// confirmed, and a new transaction is only sent when it reverted.
func (s *TokenizationService) write(
	ctx context.Context,
	r *pipelineRun,
	contract connector.ContractRef,
	method string,
	args ...interface{},
) (*model.TxHandle, *model.Receipt, error) {
	if pending := r.checkpoint.PendingTx; pending != nil && pending.Method == method {
		receipt, err := s.writer.await(ctx, pending)
		switch {
		case err == nil:
			r.checkpoint.PendingTx = nil
			r.logger.Info("Pending write confirmed",
				zap.String("method", method),
				zap.String("hash", pending.Hash))
			return pending, receipt, nil
		case errors.Is(err, connector.ErrReverted):
			r.checkpoint.PendingTx = nil
			r.logger.Warn("Pending write reverted, submitting again",
				zap.String("method", method),
				zap.String("hash", pending.Hash))
		default:
			return pending, nil, err
		}
	}

	return s.writer.write(ctx, contract, method, r.account, nil, args...)
}

// observe wraps the caller's progress func and mirrors step outcomes to the event stream.
func (s *TokenizationService) observe(ctx context.Context, r *pipelineRun, progress ProgressFunc) ProgressFunc {
	return func(p StepProgress) {
		if progress != nil {
			progress(p)
		}

		event := &model.Event{
			RunID:   p.RunID,
			Step:    string(p.Step),
			Account: r.account.Hex(),
			Data:    map[string]string{"certificate_id": r.cert.ID},
		}

		switch p.Status {
		case StepConfirmed:
			event.Type = model.EventStepConfirmed
			event.TxHash = stepTxHash(r.checkpoint, p.Step)
		case StepFailed:
			event.Type = model.EventStepFailed
			event.Error = p.Err.Error()
			var serr *StepError
			if errors.As(p.Err, &serr) && serr.PendingTx != nil {
				event.TxHash = serr.PendingTx.Hash
			}
		default:
			return
		}

		s.publish(ctx, event)
	}
}

func stepTxHash(cp *Checkpoint, name StepName) string {
	var tx *model.TxHandle
	switch name {
	case StepMint:
		tx = cp.MintTx
	case StepAcquireOwnership:
		tx = cp.OwnershipTx
	case StepApproveAndDeposit:
		tx = cp.DepositTx
	case StepConfigurePrice:
		tx = cp.PriceTx
	}
	if tx == nil {
		return ""
	}
	return tx.Hash
}

// publish never fails the flow: the chain writes it reports on are already final.
// Events are sent even after the caller's context is cancelled.
func (s *TokenizationService) publish(ctx context.Context, event *model.Event) {
	publishEvent(ctx, s.publisher, s.logger, event)
}

func publishEvent(ctx context.Context, pub publisher.Publisher, logger *zap.Logger, event *model.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	err := pub.PublishEvent(context.WithoutCancel(ctx), event)
	if err != nil {
		logger.Warn("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("run_id", event.RunID),
			zap.Error(err))
	}
}
