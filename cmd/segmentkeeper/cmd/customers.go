package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/customers"
	"github.com/solatis/segmentkeeper/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Manage stored customer rows",
}

var customersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load customer rows from a JSON file into the database",
	Long: `Loads customers for one shop. The file holds either a JSON array of
customers or an object {"customers": [...]}. Invalid rows are reported and
skipped; valid rows are upserted.`,
	RunE: runCustomersImport,
}

var customersCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored customers of a shop",
	RunE:  runCustomersCount,
}

func init() {
	rootCmd.AddCommand(customersCmd)
	customersCmd.AddCommand(customersImportCmd, customersCountCmd)
	for _, c := range []*cobra.Command{customersImportCmd, customersCountCmd} {
		c.Flags().String("shop", "", "shop the customers belong to (required)")
		_ = c.MarkFlagRequired("shop")
	}
	customersImportCmd.Flags().String("file", "", "JSON file to import (required)")
	_ = customersImportCmd.MarkFlagRequired("file")
}

func openCustomerStore() (*customers.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
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
	return customers.NewStore(queries), func() { database.Close() }, nil
}

// readCustomers accepts a bare array or a {"customers": [...]} document.
func readCustomers(data []byte) ([]customers.Customer, error) {
	var rows []customers.Customer
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("invalid customer file: %w", err)
		}
		return rows, nil
	}
	var doc struct {
		Customers []customers.Customer `json:"customers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid customer file: %w", err)
	}
	return doc.Customers, nil
}

func runCustomersImport(cmd *cobra.Command, args []string) error {
	shop, _ := cmd.Flags().GetString("shop")
	path, _ := cmd.Flags().GetString("file")
	if shop = strings.TrimSpace(shop); shop == "" {
		return fmt.Errorf("--shop cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	rows, err := readCustomers(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	valid := make([]customers.Customer, 0, len(rows))
	for i, c := range rows {
		if err := c.Validate(); err != nil {
			fmt.Fprintf(out, "row %d (%s): rejected: %v\n", i+1, c.ID, err)
			continue
		}
		valid = append(valid, c)
	}

	store, closeDB, err := openCustomerStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Upsert(cmd.Context(), types.ShopID(shop), valid); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(out, "imported %d of %d customers for %s\n", len(valid), len(rows), shop)
	return nil
}

func runCustomersCount(cmd *cobra.Command, args []string) error {
	shop, _ := cmd.Flags().GetString("shop")
	store, closeDB, err := openCustomerStore()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := store.Count(cmd.Context(), types.ShopID(shop))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
