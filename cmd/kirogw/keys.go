package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kirohq/gateway/pkg/cli"
	"kirohq/gateway/pkg/keys"
)

var keysFlags struct {
	name          string
	rpm           int
	tpm           int
	tokenLimit   int64
	requestLimit int64
	format       string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage client API keys",
	Long: `Create, list and revoke the API keys clients authenticate with.

The plaintext key is printed once at creation and cannot be recovered
afterwards; only a bcrypt hash is stored.`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Long: `Create an API key and print it.

Examples:
  kirogw keys create --name ci
  kirogw keys create --name heavy-user --rpm 120 --tpm 200000`,
	RunE: createKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  listKeys,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Deactivate an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  revokeKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCreateCmd.Flags().StringVarP(&keysFlags.name, "name", "n", "", "key name (required)")
	keysCreateCmd.Flags().IntVar(&keysFlags.rpm, "rpm", 0, "requests per minute, 0 for unlimited")
	keysCreateCmd.Flags().IntVar(&keysFlags.tpm, "tpm", 0, "tokens per minute, 0 for unlimited")
	keysCreateCmd.Flags().Int64Var(&keysFlags.tokenLimit, "token-limit", 0, "lifetime token budget, 0 for unlimited")
	keysCreateCmd.Flags().Int64Var(&keysFlags.requestLimit, "request-limit", 0, "lifetime request budget, 0 for unlimited")
	keysCreateCmd.MarkFlagRequired("name")

	keysListCmd.Flags().StringVar(&keysFlags.format, "format", "table", "output format (table or json)")
}

func createKey(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	plaintext, key, err := keys.NewManager(store).Create(cmd.Context(), keys.CreateParams{
		Name:               keysFlags.name,
		RateLimitRPM:       keysFlags.rpm,
		RateLimitTPM:       keysFlags.tpm,
		UsageLimitTokens:   keysFlags.tokenLimit,
		UsageLimitRequests: keysFlags.requestLimit,
	})
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("created key %q (id %d)\n\n", key.Name, key.ID)
	fmt.Printf("  %s\n\n", plaintext)
	fmt.Println("store it now; the key cannot be shown again")
	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(keysFlags.format)
	if err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListAPIKeys(cmd.Context())
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if format == cli.FormatJSON {
		type row struct {
			ID        int64     `json:"id"`
			KeyID     string    `json:"key_id"`
			Name      string    `json:"name"`
			IsActive  bool      `json:"is_active"`
			CreatedAt time.Time `json:"created_at"`
		}
		rows := make([]row, 0, len(list))
		for _, k := range list {
			rows = append(rows, row{k.ID, k.KeyID, k.Name, k.IsActive, k.CreatedAt})
		}
		return cli.WriteJSON(os.Stdout, rows)
	}

	table := &cli.Table{Headers: []string{"ID", "KEY", "NAME", "ACTIVE", "CREATED"}}
	for _, k := range list {
		table.Add(
			strconv.FormatInt(k.ID, 10),
			k.KeyID+"...",
			k.Name,
			strconv.FormatBool(k.IsActive),
			k.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return table.WriteTo(os.Stdout)
}

func revokeKey(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid key id %q", args[0])
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := store.GetAPIKeyByID(cmd.Context(), id)
	if err != nil {
		return &cli.ExitError{Code: 3, Err: fmt.Errorf("key %d not found", id)}
	}
	if err := store.SetAPIKeyActive(cmd.Context(), id, false); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Printf("revoked key %q (id %d)\n", key.Name, id)
	return nil
}
