package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skillforge-network/skillforge/internal/app/credit"
	"github.com/skillforge-network/skillforge/internal/domain"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userShowCmd)

	userCreateCmd.Flags().StringP("email", "e", "", "Email address (required)")
	userCreateCmd.Flags().StringP("name", "n", "", "Display name (required)")
	userCreateCmd.MarkFlagRequired("email")
	userCreateCmd.MarkFlagRequired("name")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage marketplace users",
}

// ─── user create ────────────────────────────────────────────────────────────

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and grant the signup bonus",
	RunE:  runUserCreate,
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	credits := credit.New(db, nil, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))

	id, err := db.CreateUser(ctx, email, name, timeNow())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := credits.SignupBonus(ctx, id); err != nil {
		return fmt.Errorf("grant signup bonus: %w", err)
	}

	fmt.Printf("Created user %d (%s) with %d starting credits\n", id, email, domain.SignupBonusCredits)
	return nil
}

// ─── user show ──────────────────────────────────────────────────────────────

var userShowCmd = &cobra.Command{
	Use:   "show USER_ID",
	Short: "Show a user and their balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserShow,
}

func runUserShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := db.GetUser(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("User #%d\n", user.ID)
	fmt.Printf("  Email:   %s\n", user.Email)
	fmt.Printf("  Name:    %s\n", user.Name)
	fmt.Printf("  Credits: %d\n", user.TimeCredits)
	fmt.Printf("  Joined:  %s\n", user.CreatedAt.Format("2006-01-02"))
	return nil
}
