// Package main is the ocrr command line: catalog maintenance, one-off bon
// processing, mail intake and the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ocrr/internal/app"
	"ocrr/internal/config"
	"ocrr/internal/logging"
)

var (
	logLevel  string
	logFormat string
	noColor   bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "ocrr",
	Short: "Reconcile OCR'd order forms against the catalog and export them",
	Long: `ocrr turns bons de commande (JSON OCR output, text, XLSX, PDF or e-mail)
into catalog-checked order lines, then exports them to Google Sheets with a
bounded correction loop, or to XLSX files.

Configuration comes from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}

		application, err = app.New(cmd.Context(), cfg, logging.New(cfg))
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override LOG_FORMAT (console|json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newCatalogImportCmd())
	rootCmd.AddCommand(newCatalogSyncCmd())
	rootCmd.AddCommand(newCatalogStatsCmd())
	rootCmd.AddCommand(newBonProcessCmd())
	rootCmd.AddCommand(newBonSendCmd())
	rootCmd.AddCommand(newBonExportCmd())
	rootCmd.AddCommand(newDiscoveryDebugCmd())
	rootCmd.AddCommand(newMailFetchCmd())
	rootCmd.AddCommand(newMailProcessCmd())
	rootCmd.AddCommand(newMailListenCmd())
	rootCmd.AddCommand(newServeCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		failure("%v", err)
		cancel()
		os.Exit(1)
	}
}
