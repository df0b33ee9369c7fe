package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skillforge-network/skillforge/internal/app/credit"
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsHistoryCmd)
	creditsCmd.AddCommand(creditsGrantCmd)
	creditsCmd.AddCommand(creditsDeductCmd)

	creditsHistoryCmd.Flags().IntP("limit", "l", 20, "Maximum rows to show")
	creditsGrantCmd.Flags().StringP("reason", "r", "Admin adjustment", "Ledger reason")
	creditsDeductCmd.Flags().StringP("reason", "r", "Admin adjustment", "Ledger reason")
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and adjust time-credit balances",
}

// withEngine opens the store and hands a credit engine to fn.
func withEngine(fn func(ctx context.Context, credits *credit.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	credits := credit.New(db, nil, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))
	return fn(context.Background(), credits)
}

// ─── credits balance ────────────────────────────────────────────────────────

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Show a user's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, credits *credit.Engine) error {
			balance, err := credits.Balance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("User %d: %d credits\n", id, balance)
			return nil
		})
	},
}

// ─── credits history ────────────────────────────────────────────────────────

var creditsHistoryCmd = &cobra.Command{
	Use:   "history USER_ID",
	Short: "Show a user's ledger, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return withEngine(func(ctx context.Context, credits *credit.Engine) error {
			rows, err := credits.History(ctx, id, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No transactions.")
				return nil
			}
			for _, tx := range rows {
				fmt.Printf("%s  %+4d  (balance %d)  %s  %s\n",
					tx.CreatedAt.Format("2006-01-02 15:04"),
					tx.Amount, tx.BalanceAfter, tx.TransactionType, tx.Reason)
			}
			return nil
		})
	},
}

// ─── credits grant / deduct ─────────────────────────────────────────────────

var creditsGrantCmd = &cobra.Command{
	Use:   "grant USER_ID AMOUNT",
	Short: "Grant credits to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdjust(cmd, args, false)
	},
}

var creditsDeductCmd = &cobra.Command{
	Use:   "deduct USER_ID AMOUNT",
	Short: "Deduct credits from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdjust(cmd, args, true)
	},
}

func runAdjust(cmd *cobra.Command, args []string, deduct bool) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	amount, err := parseID(args[1])
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[1])
	}
	reason, _ := cmd.Flags().GetString("reason")

	return withEngine(func(ctx context.Context, credits *credit.Engine) error {
		if deduct {
			err = credits.Deduct(ctx, id, amount, reason)
		} else {
			err = credits.Grant(ctx, id, amount, reason)
		}
		if err != nil {
			return err
		}
		balance, err := credits.Balance(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("User %d now has %d credits\n", id, balance)
		return nil
	})
}
