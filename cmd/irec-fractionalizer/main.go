package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akshaysangma/irec-fractionalizer/internal/catalog"
	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/publisher"
	"github.com/akshaysangma/irec-fractionalizer/internal/service"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const usage = `Usage: irec-fractionalizer <command> [flags]

Commands:
  serve       run the HTTP API
  tokenize    mint, fractionalize and price a certificate
  purchase    buy fractions from the marketplace reserve
  holdings    show balances of the active account
  transfers   list fraction token transfers

Run "irec-fractionalizer <command> --help" for command flags.
`

// command registers its own flags on a.flags, then calls a.start.
type command func(ctx context.Context, a *app) error

var commands = map[string]command{
	"serve":     runServe,
	"tokenize":  runTokenize,
	"purchase":  runPurchase,
	"holdings":  runHoldings,
	"transfers": runTransfers,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Args[1], os.Args[2:])

	err := cmd(ctx, a)
	a.close()
	stop()

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the wired dependencies shared by every command
type app struct {
	name       string
	args       []string
	flags      *pflag.FlagSet
	viper      *viper.Viper
	configPath *string

	cfg          *config.Config
	logger       *zap.Logger
	gateway      *connector.EthereumGateway
	publisher    publisher.Publisher
	catalog      *catalog.Catalog
	tokenization *service.TokenizationService
	purchases    *service.PurchaseService
	holdings     *service.HoldingsService
}

func newApp(name string, args []string) *app {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SortFlags = false

	a := &app{
		name:       name,
		args:       args,
		flags:      flags,
		viper:      viper.New(),
		configPath: flags.String("config", ".", "directory containing config.yaml"),
	}

	flags.String("log-level", "", "override log.level")
	flags.String("node-url", "", "override ethereum.node_url")
	a.bindFlag("log.level", "log-level")
	a.bindFlag("ethereum.node_url", "node-url")

	return a
}

// bindFlag lets a flag override a config key. Unset flags keep the file value.
func (a *app) bindFlag(key, flag string) {
	err := a.viper.BindPFlag(key, a.flags.Lookup(flag))
	if err != nil {
		panic("Failed to bind flag " + flag + ": " + err.Error())
	}
}

// start parses the command line, loads the configuration and connects every dependency.
func (a *app) start(ctx context.Context) error {
	err := a.flags.Parse(a.args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(a.viper, *a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = config.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	a.logger.Info("Starting IREC fractionalizer", zap.String("command", a.name))

	wallet, err := connector.LoadWallet(&cfg.Wallet)
	switch {
	case errors.Is(err, connector.ErrNoWallet):
		a.logger.Warn("No wallet configured, write operations are disabled")
	case err != nil:
		return err
	}

	a.gateway = connector.NewEthereumGateway(&cfg.Ethereum, wallet, a.logger)
	err = a.gateway.Connect(ctx)
	if err != nil {
		return err
	}

	a.publisher = publisher.New(&cfg.Kafka, a.logger)
	err = a.publisher.Connect(ctx)
	if err != nil {
		return err
	}

	contracts, err := connector.NewContracts(cfg.Contracts.Certificate, cfg.Contracts.Token, cfg.Contracts.Marketplace)
	if err != nil {
		return err
	}

	a.catalog, err = catalog.FromConfig(cfg.Certificates)
	if err != nil {
		return err
	}

	a.tokenization, err = service.NewTokenizationService(a.gateway, contracts, a.catalog, a.publisher, &cfg.Tokenization, a.logger)
	if err != nil {
		return err
	}
	a.purchases = service.NewPurchaseService(a.gateway, contracts, a.publisher, a.logger)
	a.holdings = service.NewHoldingsService(a.gateway, a.gateway, contracts, &cfg.History, a.logger)

	return nil
}

func (a *app) close() {
	if a.logger == nil {
		return
	}

	if a.publisher != nil {
		err := a.publisher.Close()
		if err != nil {
			a.logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}
	if a.gateway != nil {
		_ = a.gateway.Close()
	}

	_ = a.logger.Sync()
}
