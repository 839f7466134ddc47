package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/akshaysangma/irec-fractionalizer/internal/api"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/service"
	"github.com/akshaysangma/irec-fractionalizer/internal/units"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func runServe(ctx context.Context, a *app) error {
	err := a.start(ctx)
	if err != nil {
		return err
	}

	handler := api.NewHandler(a.catalog, a.tokenization, a.purchases, a.holdings, a.logger)
	server := api.NewServer(&a.cfg.HTTP, api.NewRouter(handler, a.logger), a.logger)

	select {
	case err := <-server.Start():
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received, gracefully shutting down...")
	}

	err = server.Shutdown(context.Background())
	if err != nil {
		a.logger.Warn("Shutdown timed out, forcing exit", zap.Error(err))
		return nil
	}

	a.logger.Info("Graceful shutdown completed")
	return nil
}

func runTokenize(ctx context.Context, a *app) error {
	var req model.TokenizationRequest
	f := a.flags
	f.StringVar(&req.CertificateID, "certificate", "", "certificate id from the catalog")
	f.StringVar(&req.TokenName, "name", "", "fraction token name")
	f.StringVar(&req.TokenSymbol, "symbol", "", "fraction token symbol, at most 5 characters")
	f.StringVar(&req.TokenDescription, "description", "", "token description, defaults to the certificate summary")
	f.Int64Var(&req.FractionCount, "fractions", 1000, "number of fractions")
	price := f.String("price", "0.01", "price per fraction in native currency")
	f.Int64Var(&req.MinPurchaseAmount, "min-purchase", 1, "minimum fractions per purchase")
	royalty := f.String("royalty", "2.5", "royalty percentage, 0 to 10")
	fee := f.String("trading-fee", "1", "trading fee percentage, 0 to 5")
	restriction := f.String("restriction", string(model.RestrictionNone), "transfer restriction: none, kyc, accredited or whitelist")
	f.BoolVar(&req.AllowSecondaryTrading, "secondary-trading", true, "allow secondary trading")
	resume := f.String("resume", "", "checkpoint file printed by a failed run")

	err := a.start(ctx)
	if err != nil {
		return err
	}

	for target, value := range map[*decimal.Decimal]string{
		&req.FractionPrice:        *price,
		&req.RoyaltyPercentage:    *royalty,
		&req.TradingFeePercentage: *fee,
	} {
		*target, err = units.ParseDecimal(value)
		if err != nil {
			return err
		}
	}
	req.TransferRestriction = model.TransferRestriction(*restriction)

	progress := func(p service.StepProgress) {
		if p.Status == service.StepStarted {
			return
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %-20s %s\n", p.Index+1, p.Total, p.Step, p.Status)
	}

	var result *service.PipelineResult
	if *resume != "" {
		var checkpoint *service.Checkpoint
		checkpoint, err = readCheckpoint(*resume)
		if err != nil {
			return err
		}
		result, err = a.tokenization.Resume(ctx, req, checkpoint, progress)
	} else {
		result, err = a.tokenization.Run(ctx, req, progress)
	}

	if serr, ok := service.AsStepError(err); ok && serr.SideEffects {
		fmt.Fprintln(os.Stderr, "The run stopped after confirmed writes. Save the checkpoint below and pass it to --resume.")
		_ = printJSON(serr.Checkpoint)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Token %s priced at %s per fraction (run %s)\n",
		result.TokenID, units.FromEther(result.UnitPrice), result.RunID)
	return nil
}

func readCheckpoint(path string) (*service.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var checkpoint service.Checkpoint
	err = json.Unmarshal(data, &checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}

	return &checkpoint, nil
}

func runPurchase(ctx context.Context, a *app) error {
	amount := a.flags.Int64("amount", 0, "number of fractions to buy")
	wait := a.flags.Bool("wait", false, "wait for the transaction receipt")

	err := a.start(ctx)
	if err != nil {
		return err
	}

	var result *service.PurchaseResult
	if *wait {
		result, err = a.purchases.ExecuteAndWait(ctx, *amount)
	} else {
		result, err = a.purchases.Execute(ctx, *amount)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Bought %d fractions at %s each, total %s\n",
		result.Amount, units.FromEther(result.UnitPrice), units.FromEther(result.TotalCost))
	fmt.Printf("Transaction %s", result.Tx.Hash)
	if result.Receipt != nil {
		fmt.Printf(" confirmed in block %d", result.Receipt.BlockNumber)
	}
	fmt.Println()

	return nil
}

func runHoldings(ctx context.Context, a *app) error {
	asJSON := a.flags.Bool("json", false, "print JSON")

	err := a.start(ctx)
	if err != nil {
		return err
	}

	summary, err := a.holdings.Summary(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(summary)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Account\t%s\n", units.ShortAddress(summary.Address))
	fmt.Fprintf(w, "Balance\t%s\n", units.FormatTokenAmount(summary.Balance, 2))
	fmt.Fprintf(w, "Ownership\t%s%%\n", units.FormatPercentage(summary.PercentOwnership))
	fmt.Fprintf(w, "Reserve\t%s\n", units.FormatTokenAmount(summary.ReserveBalance, 2))
	fmt.Fprintf(w, "Unit price\t%s\n", units.FromEther(summary.UnitPrice))
	return w.Flush()
}

func runTransfers(ctx context.Context, a *app) error {
	asJSON := a.flags.Bool("json", false, "print JSON")

	err := a.start(ctx)
	if err != nil {
		return err
	}

	records, err := a.holdings.Transfers(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tFROM\tTO\tAMOUNT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			units.FormatTimestamp(r.Timestamp),
			units.ShortAddress(r.From),
			units.ShortAddress(r.To),
			units.FormatTokenAmount(r.Amount, 2))
	}
	return w.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
