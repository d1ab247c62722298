package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ocrr/internal/catalog"
	"ocrr/internal/pipeline"
)

func newCatalogImportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog:import",
		Short: "Import a catalog file (json, yaml or xlsx) into sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(file) == "" {
				file = application.Cfg.CatalogPath
			}
			if strings.TrimSpace(file) == "" {
				return fmt.Errorf("--file is required")
			}
			res, err := catalog.NewSyncService(application.DB, application.Cfg, application.Log).ImportFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			success("catalog import done stored=%d duplicates=%d rejected=%d snapshot=%s", res.Stored, res.Duplicates, res.Rejected, res.Snapshot)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file (default CATALOG_PATH)")
	return cmd
}

func newCatalogSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog:sync",
		Short: "Pull the catalog from the remote catalog API into sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := catalog.NewSyncService(application.DB, application.Cfg, application.Log).RemoteSync(cmd.Context())
			if err != nil {
				return err
			}
			success("catalog sync done received=%d stored=%d duplicates=%d rejected=%d", res.Received, res.Stored, res.Duplicates, res.Rejected)
			return nil
		},
	}
}

func newCatalogStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog:stats",
		Short: "Show the loaded catalog index",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx := application.Catalog.Index(cmd.Context())
			if idx.Len() == 0 {
				warning("catalog is empty, check CATALOG_SOURCE and CATALOG_PATH")
			}
			return printJSON(map[string]any{
				"source":       application.Cfg.CatalogSource,
				"entries":      idx.Len(),
				"duplicates":   idx.Duplicates,
				"rejected":     idx.Rejected,
				"lengths":      idx.Lengths,
				"distribution": idx.LengthDistribution,
			})
		},
	}
}

func newDiscoveryDebugCmd() *cobra.Command {
	var text, file string

	cmd := &cobra.Command{
		Use:   "discovery:debug",
		Short: "Trace the text discovery passes over some OCR text",
		RunE: func(cmd *cobra.Command, args []string) error {
			value := text
			if file != "" {
				bon, err := pipeline.ExtractBonFromInput(pipeline.InputTypeForName(file), file)
				if err != nil {
					return err
				}
				value = bon.OCRText
			}
			a := application
			engine := pipeline.NewDiscoveryEngine(a.Catalog.Index(cmd.Context()), pipeline.NewConfusableTable(), a.Cfg, a.Log)
			return printJSON(engine.Trace(value))
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "OCR text")
	cmd.Flags().StringVar(&file, "file", "", "bon file whose OCR text is traced")
	return cmd
}
