package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/segmentkeeper/internal/client"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/preview"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

var previewCmd = &cobra.Command{
	Use:   "preview [filter json]",
	Short: "Count the customers a filter matches on a running server",
	Long: `Evaluates a filter document against a running server and prints the
match count and sample. The filter is read from --file, from the argument,
or from stdin when neither is given. Any accepted filter shape works.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().String("file", "", "filter document to evaluate")
	previewCmd.Flags().Bool("json", false, "print the result as JSON")
	addServerFlag(previewCmd)
}

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "server base URL (default from config, http://localhost:8080)")
}

// newClient builds an API client from config, SK_API_KEY and --server.
func newClient(cmd *cobra.Command, cfg *config.Config) (*client.Client, error) {
	baseURL := cfg.Client.BaseURL
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		baseURL = server
	}
	apiKey := config.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured (set SK_API_KEY environment variable)")
	}
	return client.New(baseURL, apiKey, client.WithTimeout(cfg.Client.Timeout))
}

func readFilterInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		return os.ReadFile(path)
	}
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}

	data, err := readFilterInput(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to read filter: %w", err)
	}
	tree := wire.Decode(data)
	if tree.IsEmpty() {
		return types.ErrEmptyFilter
	}

	session := preview.NewSession(c, "", preview.WithDebounce(0), preview.WithLogger(slog.Default()))
	defer session.Close()
	session.Update(tree)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.Timeout)
	defer cancel()
	st, err := session.Wait(ctx)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if st.Status == preview.StatusFailed {
		return fmt.Errorf("preview failed: %w", st.Err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(types.MatchResult{Count: st.Count, Sample: st.Sample}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "%d customers match\n", st.Count)
	for _, s := range st.Sample {
		name := strings.TrimSpace(s.FirstName + " " + s.LastName)
		fmt.Fprintf(out, "  %-36s %-28s %-20s %10.2f\n", s.ID, s.Email, name, s.TotalSpent)
	}
	return nil
}
