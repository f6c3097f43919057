package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kirohq/gateway/pkg/cli"
)

var accountsFlags struct {
	format string
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect upstream accounts",
	Long: `Inspect the upstream accounts the gateway proxies through.

Accounts are onboarded through the admin API; this command gives a
quick view without opening the dashboard.`,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upstream accounts",
	RunE:  listAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)

	accountsListCmd.Flags().StringVar(&accountsFlags.format, "format", "table", "output format (table or json)")
}

func listAccounts(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(accountsFlags.format)
	if err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	accounts, err := store.ListAccounts(cmd.Context(), false)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	if format == cli.FormatJSON {
		type row struct {
			ID         int64     `json:"id"`
			Name       string    `json:"name"`
			AuthKind   string    `json:"auth_kind"`
			Region     string    `json:"region"`
			IsActive   bool      `json:"is_active"`
			ErrorCount int       `json:"error_count"`
			ExpiresAt  time.Time `json:"token_expires_at"`
		}
		rows := make([]row, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, row{a.ID, a.Name, a.AuthKind, a.Region, a.IsActive, a.ErrorCount, a.ExpiresAt})
		}
		return cli.WriteJSON(os.Stdout, rows)
	}

	table := &cli.Table{Headers: []string{"ID", "NAME", "KIND", "REGION", "ACTIVE", "ERRORS", "TOKEN EXPIRES"}}
	for _, a := range accounts {
		expires := "-"
		if !a.ExpiresAt.IsZero() {
			expires = a.ExpiresAt.Format("2006-01-02 15:04")
		}
		table.Add(
			strconv.FormatInt(a.ID, 10),
			a.Name,
			a.AuthKind,
			a.Region,
			strconv.FormatBool(a.IsActive),
			strconv.Itoa(a.ErrorCount),
			expires,
		)
	}
	return table.WriteTo(os.Stdout)
}
