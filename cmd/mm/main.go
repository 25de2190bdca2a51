// Command mm is the market maker's single entry point, dispatching to the
// `feed`, `market-maker`, and `monitor` subcommands the way the teacher
// dispatches a single responsibility from cmd/bot/main.go — generalized
// here into a small subcommand router since this repository's surface
// calls for more than one CLI verb on one binary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"perp-mm/internal/account"
	"perp-mm/internal/bot"
	"perp-mm/internal/config"
	"perp-mm/internal/exchange"
	"perp-mm/internal/fairprice"
	"perp-mm/internal/orderbook"
	"perp-mm/internal/position"
	"perp-mm/internal/quoter"
	"perp-mm/internal/reconciler"
	"perp-mm/internal/reffeed"
	"perp-mm/internal/tui"
	"perp-mm/pkg/types"

	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mm <feed|market-maker|monitor> [flags]")
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "feed":
		err = runFeed(args)
	case "market-maker":
		err = runMarketMaker(args)
	case "monitor":
		err = runMonitor(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// runFeed implements `mm feed <symbols...> [--json]`: a raw stdout printer
// over one reference-venue mid-price stream per symbol, with no
// quoting/account content — the "boundary only" CLI the specification
// calls out.
func runFeed(args []string) error {
	fs := pflag.NewFlagSet("feed", pflag.ExitOnError)
	jsonOut := fs.Bool("json", false, "print mid-price updates as JSON lines")
	wsURL := fs.String("reference-ws-url", "wss://reference.example/ws", "reference venue websocket base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	symbols := fs.Args()
	if len(symbols) == 0 {
		return fmt.Errorf("feed: at least one symbol is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, cancel := signalContext()
	defer cancel()

	clients := make([]*reffeed.Client, len(symbols))
	for i, sym := range symbols {
		clients[i] = reffeed.New(*wsURL, sym, logger)
		go func(c *reffeed.Client) {
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("feed connection error", "error", err)
			}
		}(clients[i])
	}

	for {
		for _, c := range clients {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case mid := <-c.MidPrices():
				printMid(mid, *jsonOut)
			default:
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func printMid(mid types.MidPrice, jsonOut bool) {
	if jsonOut {
		data, err := json.Marshal(mid)
		if err != nil {
			return
		}
		fmt.Println(string(data))
		return
	}
	fmt.Printf("mid=%s bid=%s ask=%s ts=%d\n", mid.Mid, mid.Bid, mid.Ask, mid.TimestampMs)
}

// runMarketMaker implements `mm market-maker <symbol> [flags]`: the full
// trading bot.
func runMarketMaker(args []string) error {
	b, cfg, logger, err := buildBot(args)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	ctx, cancel := signalContext()
	defer cancel()

	return b.Run(ctx)
}

// runMonitor implements `mm monitor <symbol> [flags]`: runs the same bot
// pipeline as market-maker but renders its status-snapshot stream in a
// terminal dashboard instead of plain log lines. It forces dry-run so the
// monitor subcommand never submits live orders on its own.
func runMonitor(args []string) error {
	b, _, logger, err := buildBot(append([]string{"--dry-run"}, args...))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := b.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("bot loop error", "error", err)
		}
	}()

	return tui.Run(b.Snapshots())
}

// buildBot loads config for the given args, fetches market metadata, and
// wires every component into one *bot.Bot, grounded on the teacher's
// engine.New wiring sequence in internal/engine/engine.go.
func buildBot(args []string) (*bot.Bot, *config.Config, *slog.Logger, error) {
	fs := pflag.NewFlagSet("market-maker", pflag.ExitOnError)
	cfgPath := fs.String("config", "", "optional YAML config file")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if symbols := fs.Args(); len(symbols) == 1 {
		_ = fs.Set("symbol", symbols[0])
	}

	cfg, err := config.Load(*cfgPath, fs)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger(cfg)

	signer, err := exchange.NewSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build signer: %w", err)
	}

	orderSizeUSD, err := decimal.NewFromString(cfg.Strategy.OrderSizeUSD)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse order_size_usd: %w", err)
	}
	closeThresholdUSD, err := decimal.NewFromString(cfg.Strategy.CloseThresholdUSD)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse close_threshold_usd: %w", err)
	}

	client := exchange.NewClient(*cfg, signer, types.MarketMeta{}, logger)

	market, err := client.GetInfo(context.Background(), cfg.Market.Symbol)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch market info: %w", err)
	}
	if cfg.Market.PriceDecimals != 0 {
		market.PriceDecimals = cfg.Market.PriceDecimals
	}
	if cfg.Market.SizeDecimals != 0 {
		market.SizeDecimals = cfg.Market.SizeDecimals
	}
	client = exchange.NewClient(*cfg, signer, market, logger)

	exFeed := exchange.NewWSFeed(cfg.API.WSURL, logger)
	if err := exFeed.Subscribe([]string{
		"trades@" + market.Symbol,
		"deltas@" + market.Symbol,
		"account@" + market.Symbol,
	}); err != nil {
		logger.Warn("initial subscribe failed, will retry on reconnect", "error", err)
	}
	go func() {
		if err := exFeed.Run(context.Background()); err != nil {
			logger.Error("exchange feed stopped", "error", err)
		}
	}()

	refClient := reffeed.New(cfg.API.ReferenceWSURL, market.Symbol, logger)
	go func() {
		if err := refClient.Run(context.Background()); err != nil {
			logger.Error("reference feed stopped", "error", err)
		}
	}()

	minSamples := cfg.Strategy.MinFairPriceSamples
	if minSamples <= 0 {
		// One offset sample is recorded per second, so the warm-up period in
		// seconds doubles as the minimum sample count.
		minSamples = cfg.Strategy.WarmupSeconds
	}
	estimator := fairprice.New(cfg.Strategy.FairPriceWindowMs, minSamples)
	book := orderbook.NewStream()
	acct := account.New(client)
	pos := position.New(market.MarketID, closeThresholdUSD)
	q := quoter.New(quoter.Config{
		SpreadBps:     cfg.Strategy.SpreadBps,
		TakeProfitBps: cfg.Strategy.TakeProfitBps,
		OrderSizeUSD:  orderSizeUSD,
	}, market)
	rec := reconciler.New(client)

	botCfg := bot.Config{
		UpdateThrottle:    time.Duration(cfg.Strategy.UpdateThrottleMs) * time.Millisecond,
		OrderSyncInterval: time.Duration(cfg.Strategy.OrderSyncIntervalMs) * time.Millisecond,
		StatusInterval:    time.Second,
	}

	b := bot.New(botCfg, market, estimator, book, acct, pos, q, rec, exFeed, client, refClient, logger)
	return b, cfg, logger, nil
}
