package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/segmentkeeper/internal/core/api"
	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/core/metrics"
	"github.com/solatis/segmentkeeper/internal/core/server"
	"github.com/solatis/segmentkeeper/internal/customers"
	"github.com/solatis/segmentkeeper/internal/segments"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the segment API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	pending, err := db.Pending(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("migrations not applied (%s) - run 'segmentkeeper migrate' first", strings.Join(pending, ", "))
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, queries)

	customerMatcher, err := customers.NewMatcher(database, cfg.Preview.SampleSize, logger)
	if err != nil {
		return fmt.Errorf("failed to create matcher: %w", err)
	}
	matcher := metrics.InstrumentMatcher(customerMatcher)

	service, err := api.NewService(
		segments.NewStore(queries, customerMatcher, logger),
		customers.NewStore(queries),
		matcher,
		authenticator,
		api.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	srv, err := server.New(&cfg.Server, service.Handler(), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting SegmentKeeper", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
