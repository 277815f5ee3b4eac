package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/app"
	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Terminal operations",
	Long:  `Commands for talking to the trading terminal bridge directly.`,
}

var brokerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the terminal bridge is answering",
	RunE:  runBrokerStatus,
}

var brokerPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	RunE:  runBrokerPositions,
}

var brokerHistoryCmd = &cobra.Command{
	Use:   "history <ticket>",
	Short: "Show the deal history of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runBrokerHistory,
}

var brokerCandlesCmd = &cobra.Command{
	Use:   "candles",
	Short: "Print recent bars from the terminal",
	RunE:  runBrokerCandles,
}

var (
	candleTimeframe string
	candleCount     int
)

func init() {
	rootCmd.AddCommand(brokerCmd)
	brokerCmd.AddCommand(brokerStatusCmd)
	brokerCmd.AddCommand(brokerPositionsCmd)
	brokerCmd.AddCommand(brokerHistoryCmd)
	brokerCmd.AddCommand(brokerCandlesCmd)

	brokerCandlesCmd.Flags().StringVar(&candleTimeframe, "tf", "H1", "M1, M5, M15, M30, H1, H4 or D1")
	brokerCandlesCmd.Flags().IntVar(&candleCount, "count", 50, "number of bars")
}

// withBroker handles common broker setup.
func withBroker(fn func(ctx context.Context, b broker.Broker, symbol string, log *zap.Logger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	b := app.NewBroker(cfg.Broker, log)
	if b == nil {
		return core.WrapError(core.ErrBrokerUnavailable, fmt.Errorf("broker is disabled in config"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, b, cfg.App.Symbol, log)
}

func runBrokerStatus(cmd *cobra.Command, args []string) error {
	return withBroker(func(ctx context.Context, b broker.Broker, symbol string, log *zap.Logger) error {
		fmt.Printf("Broker: %s\n", b.Name())
		positions, err := b.Positions(ctx, symbol)
		if err != nil {
			fmt.Printf("Status: UNREACHABLE (%v)\n", err)
			return err
		}
		fmt.Printf("Status: CONNECTED\n")
		fmt.Printf("Open positions on %s: %d\n", symbol, len(positions))
		log.Info("broker status checked", zap.String("broker", b.Name()))
		return nil
	})
}

func runBrokerPositions(cmd *cobra.Command, args []string) error {
	return withBroker(func(ctx context.Context, b broker.Broker, symbol string, log *zap.Logger) error {
		positions, err := b.Positions(ctx, symbol)
		if err != nil {
			return fmt.Errorf("getting positions: %w", err)
		}

		if len(positions) == 0 {
			fmt.Println("No positions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TICKET\tSIDE\tVOLUME\tP&L\t")
		fmt.Fprintln(w, "------\t----\t------\t---\t")

		for _, p := range positions {
			plSign := ""
			if p.Profit >= 0 {
				plSign = "+"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s%.2f\t\n", p.Ticket, p.Type, broker.FormatVolume(p.Volume), plSign, p.Profit)
		}
		w.Flush()

		log.Info("positions listed", zap.Int("count", len(positions)))
		return nil
	})
}

func runBrokerHistory(cmd *cobra.Command, args []string) error {
	return withBroker(func(ctx context.Context, b broker.Broker, symbol string, log *zap.Logger) error {
		d, err := b.Deal(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting history: %w", err)
		}

		fmt.Printf("Ticket: %s\n", d.Ticket)
		fmt.Printf("Status: %s\n", d.Status)
		if d.Status == core.TradeClosed {
			fmt.Printf("Close price: %s\n", broker.FormatPrice(d.ClosePrice))
			fmt.Printf("Profit:      %.2f\n", d.Profit)
			if !d.CloseTime.IsZero() {
				fmt.Printf("Closed at:   %s\n", d.CloseTime.Format("2006-01-02 15:04:05 MST"))
			}
		}
		return nil
	})
}

func runBrokerCandles(cmd *cobra.Command, args []string) error {
	return withBroker(func(ctx context.Context, b broker.Broker, symbol string, log *zap.Logger) error {
		bars, err := b.Candles(ctx, symbol, candleTimeframe, candleCount)
		if err != nil {
			return fmt.Errorf("getting candles: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\t")
		for _, bar := range bars {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t\n",
				bar.Time.Format("2006-01-02 15:04"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
		w.Flush()
		return nil
	})
}
