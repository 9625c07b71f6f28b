// Command basketd runs the basket mean-reversion strategy, either as a
// historical backtest or as a live paper-trading loop against Alpaca.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"basketbot-go/internal/backtest"
	"basketbot-go/internal/broker"
	"basketbot-go/internal/config"
	"basketbot-go/internal/live"
	"basketbot-go/internal/marketdata"
	"basketbot-go/internal/metrics"
	"basketbot-go/internal/util"
)

var (
	cfgPath   string
	fillsPath string
	equityOut string
	streamURL string
	dataFeed  string
)

func main() {
	root := &cobra.Command{
		Use:           "basketd",
		Short:         "Basket mean-reversion trader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.yaml", "path to YAML config")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through the strategy",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().StringVar(&fillsPath, "fills", "backtest_fills.jsonl", "JSONL file for simulated fills")
	backtestCmd.Flags().StringVar(&equityOut, "equity-out", "backtest_equity.csv", "CSV file for the equity curve")
	backtestCmd.Flags().StringVar(&dataFeed, "feed", "iex", "historical data feed (iex, sip)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "Trade the strategy against the live bar stream",
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&streamURL, "stream-url", "", "override the bar stream websocket URL")

	root.AddCommand(backtestCmd, liveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := util.NewFileLogger(cfg.App.LogLevel, cfg.App.LogFile)

	start, err := parseDate(cfg.Data.Start)
	if err != nil {
		return fmt.Errorf("data.start: %w", err)
	}
	end, err := parseDate(cfg.Data.End)
	if err != nil {
		return fmt.Errorf("data.end: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bars := marketdata.NewAlpacaBars(creds, log, marketdata.WithFeed(dataFeed))
	matrix, err := bars.GetBars(ctx, cfg.Universe(), start, end, cfg.Strategy.Timeframe)
	if err != nil {
		return err
	}
	log.Info().Int("rows", matrix.Len()).Msg("loaded historical bars")

	recorder, err := backtest.NewJSONLRecorder(fillsPath)
	if err != nil {
		return err
	}
	defer recorder.Close()

	sim, err := backtest.New(cfg, log, backtest.WithRecorder(recorder))
	if err != nil {
		return err
	}
	curve, err := sim.Run(matrix)
	if err != nil {
		return err
	}
	if err := backtest.WriteEquityCSV(equityOut, curve); err != nil {
		return err
	}

	if len(curve) > 0 {
		final := curve[len(curve)-1]
		log.Info().
			Time("ts", final.Ts).
			Float64("equity", final.Equity).
			Int("fills", len(sim.Fills())).
			Str("equity_csv", equityOut).
			Str("fills_jsonl", fillsPath).
			Msg("backtest complete")
	}
	return nil
}

func runLive(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := util.NewFileLogger(cfg.App.LogLevel, cfg.App.LogFile)

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics server listening")
	}

	brk := broker.NewAlpaca(creds, log)
	stream := marketdata.NewAlpacaStream(creds, cfg.Universe(), log, streamURL)

	loop, err := live.New(cfg, brk, stream, log)
	if err != nil {
		return err
	}
	log.Info().
		Str("basket", cfg.Basket.Name).
		Strs("universe", cfg.Universe()).
		Int("lookback", cfg.Strategy.Lookback).
		Msg("starting live loop")

	err = loop.Run(ctx)
	switch {
	case errors.Is(err, live.ErrKillSwitch):
		return err
	case errors.Is(err, context.Canceled):
		log.Info().Msg("shutdown requested")
		return nil
	default:
		return err
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}
