package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database and apply the schema",
	Long: `Create the gateway database at the configured path and apply the
schema. Safe to run repeatedly; existing data is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.CountUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("database ready at %s\n", cfg.Database.Path)
		if users == 0 {
			fmt.Println("no admin users yet; create one with: kirogw create-admin")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
