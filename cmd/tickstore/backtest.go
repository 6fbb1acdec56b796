package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sawpanic/tickstore/internal/appconfig"
	"github.com/sawpanic/tickstore/internal/backtest"
	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/infrastructure/db"
	"github.com/sawpanic/tickstore/internal/strategy"
)

// runBacktest drives an interactive prompt session: pick a strategy off the
// catalog, a symbol, how many of its most recent ticks to replay, the
// starting capital, and the commission rate, then runs the replay and
// prints a summary. Grounded on the teacher's bufio.Scanner(os.Stdin)
// menu loop (cmd/cryptorun/menu_main.go) rather than a flag-only
// invocation, since this is a one-shot analyst tool, not a scripted job.
func runBacktest(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbManager, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbManager.Close()

	tickCache := cache.New(cfg.Cache)
	defer tickCache.Close()

	repo, err := dbManager.Repository(tickCache)
	if err != nil {
		return fmt.Errorf("build repository: %w", err)
	}

	catalog, err := strategy.ListCatalog()
	if err != nil {
		return fmt.Errorf("list strategies: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Available strategies:")
	for _, c := range catalog {
		fmt.Printf("  %s - %s: %s\n", c.ID, c.Name, c.Description)
	}

	strategyID, err := promptString(scanner, "Strategy id: ")
	if err != nil {
		return err
	}
	symbol, err := promptString(scanner, "Symbol: ")
	if err != nil {
		return err
	}
	recordCount, err := promptInt(scanner, "Record count: ")
	if err != nil {
		return err
	}
	initialCapital, err := promptDecimal(scanner, "Initial capital: ")
	if err != nil {
		return err
	}
	commissionPct, err := promptDecimal(scanner, "Commission rate %: ")
	if err != nil {
		return err
	}

	params := make(map[string]string, len(cfg.Backtest.StrategyParams)+1)
	for k, v := range cfg.Backtest.StrategyParams {
		params[k] = v
	}
	params["symbol"] = symbol

	strat, err := strategy.Create(strategyID, params)
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	data, err := repo.BacktestLatest(ctx, symbol, recordCount)
	if err != nil {
		return fmt.Errorf("load ticks: %w", err)
	}
	if len(data) == 0 {
		fmt.Println("no trades executed")
		return nil
	}

	backtestCfg := backtest.Config{
		InitialCapital: initialCapital,
		CommissionRate: commissionPct.Div(decimal.NewFromInt(100)),
		StrategyParams: params,
	}

	engine := backtest.New(strat, backtestCfg)
	if dbManager.IsEnabled() {
		engine = engine.WithStrategyLog(dbManager.StrategyLogStore())
	}
	result := engine.Run(data)

	printSummary(symbol, len(data), result)

	if result.TotalTrades == 0 {
		fmt.Println("no trades executed")
		return nil
	}

	detail, err := promptString(scanner, "Show detailed trade analysis? (y/N): ")
	if err != nil {
		return err
	}
	if strings.EqualFold(detail, "y") || strings.EqualFold(detail, "yes") {
		printTrades(result)
	}

	return nil
}

func printSummary(symbol string, dataPoints int, result backtest.Result) {
	log.Info().
		Str("strategy", result.StrategyName).
		Str("symbol", symbol).
		Int("data_points", dataPoints).
		Str("initial_capital", result.InitialCapital.String()).
		Str("final_value", result.FinalValue.String()).
		Str("total_pnl", result.TotalPnL.String()).
		Str("return_pct", result.ReturnPercentage.StringFixed(2)).
		Int("total_trades", result.TotalTrades).
		Int("winning_trades", result.WinningTrades).
		Int("losing_trades", result.LosingTrades).
		Str("max_drawdown", result.MaxDrawdown.StringFixed(4)).
		Dur("max_drawdown_duration", result.MaxDrawdownDuration).
		Float64("sharpe_ratio", result.SharpeRatio).
		Float64("sortino_ratio", result.SortinoRatio).
		Float64("volatility", result.Volatility).
		Float64("win_rate", result.WinRate).
		Str("profit_factor", result.ProfitFactor.String()).
		Float64("calmar_ratio", result.CalmarRatio()).
		Str("total_commission", result.TotalCommission.String()).
		Msg("backtest: run complete")
}

func printTrades(result backtest.Result) {
	fmt.Println("Trade log:")
	for _, tr := range result.Trades {
		pnl := "-"
		if tr.RealizedPnL != nil {
			pnl = tr.RealizedPnL.String()
		}
		fmt.Printf("  %s %-4s %s qty=%s price=%s commission=%s pnl=%s\n",
			tr.Timestamp.Format(time.RFC3339), tr.Side, tr.Symbol, tr.Quantity, tr.Price, tr.Commission, pnl)
	}
}

func promptString(scanner *bufio.Scanner, prompt string) (string, error) {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return "", fmt.Errorf("backtest: unexpected end of input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func promptInt(scanner *bufio.Scanner, prompt string) (int, error) {
	s, err := promptString(scanner, prompt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return n, nil
}

func promptDecimal(scanner *bufio.Scanner, prompt string) (decimal.Decimal, error) {
	s, err := promptString(scanner, prompt)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}
