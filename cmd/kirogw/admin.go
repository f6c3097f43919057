package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"kirohq/gateway/pkg/storage"
)

var createAdminFlags struct {
	username string
	email    string
	password string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin user for the operator API",
	Long: `Create an admin user for the operator API.

The password may be passed with --password for scripting; when omitted
it is read from stdin.

Examples:
  kirogw create-admin --username ops
  echo -n "$PASSWORD" | kirogw create-admin --username ops --email ops@example.com`,
	RunE: createAdmin,
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVarP(&createAdminFlags.username, "username", "u", "", "username (required)")
	createAdminCmd.Flags().StringVar(&createAdminFlags.email, "email", "", "email address")
	createAdminCmd.Flags().StringVar(&createAdminFlags.password, "password", "", "password (read from stdin when omitted)")
	createAdminCmd.MarkFlagRequired("username")
}

func createAdmin(cmd *cobra.Command, args []string) error {
	password := createAdminFlags.password
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.CreateUser(cmd.Context(), &storage.User{
		Username:     createAdminFlags.username,
		Email:        createAdminFlags.email,
		PasswordHash: string(hash),
		IsAdmin:      true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("created admin user %q (id %d)\n", createAdminFlags.username, id)
	return nil
}
