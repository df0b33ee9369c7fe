package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(skillCmd)
	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillOfferCmd)

	skillAddCmd.Flags().StringP("category", "c", "", "Skill category")
	skillOfferCmd.Flags().IntP("proficiency", "p", 3, "Proficiency 1-5")
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage the skill catalog",
}

var skillAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a skill to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.CreateSkill(context.Background(), args[0], category)
		if err != nil {
			return err
		}
		fmt.Printf("Skill %d: %s\n", id, args[0])
		return nil
	},
}

var skillOfferCmd = &cobra.Command{
	Use:   "offer USER_ID SKILL_ID",
	Short: "Mark a skill as offered by a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		skillID, err := parseID(args[1])
		if err != nil {
			return err
		}
		proficiency, _ := cmd.Flags().GetInt("proficiency")
		if proficiency < 1 || proficiency > 5 {
			return fmt.Errorf("proficiency must be 1-5, got %d", proficiency)
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

		if err := db.SetUserSkill(context.Background(), userID, skillID, proficiency, true); err != nil {
			return err
		}
		fmt.Printf("User %d now offers skill %d (proficiency %d)\n", userID, skillID, proficiency)
		return nil
	},
}
