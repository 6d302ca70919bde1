package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/types"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage shop API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key for a shop",
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("shop", "", "shop the key is scoped to (required)")
	apikeyCreateCmd.Flags().String("name", "", "human-readable key name")
	_ = apikeyCreateCmd.MarkFlagRequired("shop")
}

func openAuthenticator() (*auth.Authenticator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil, fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return auth.NewAuthenticator(secrets, queries), func() { database.Close() }, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	shop, _ := cmd.Flags().GetString("shop")
	name, _ := cmd.Flags().GetString("name")
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return fmt.Errorf("--shop cannot be empty")
	}
	if name == "" {
		name = shop
	}

	authenticator, closeDB, err := openAuthenticator()
	if err != nil {
		return err
	}
	defer closeDB()

	key, keyID, err := authenticator.CreateKey(cmd.Context(), types.ShopID(shop), name)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key id: %s\n", keyID)
	fmt.Fprintf(out, "api key: %s\n", key)
	fmt.Fprintln(out, "store the key now; it cannot be shown again")
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	authenticator, closeDB, err := openAuthenticator()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := authenticator.Revoke(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
