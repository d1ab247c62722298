package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ocrr/internal/exporter"
	"ocrr/internal/pipeline"
)

func newBonProcessCmd() *cobra.Command {
	var (
		input  string
		inType string
		xlsx   bool
		send   bool
	)

	cmd := &cobra.Command{
		Use:   "bon:process",
		Short: "Resolve one bon against the catalog and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("--input is required")
			}
			bon, err := pipeline.ExtractBonFromInput(inType, input)
			if err != nil {
				return err
			}
			res, err := application.Processor.ProcessBon(cmd.Context(), bon, nil)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if xlsx {
				path, err := application.Exports.ExportXLSX(res.BonID)
				if err != nil {
					return err
				}
				success("xlsx written to %s", path)
			}
			if send {
				return sendBon(cmd.Context(), res.BonID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "bon file path, or raw text with --type=text")
	cmd.Flags().StringVar(&inType, "type", "", "json|text|xlsx|pdf|email (default: from extension)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "also write the resolved lines to OUTPUT_DIR")
	cmd.Flags().BoolVar(&send, "send", false, "export the bon to Google Sheets after processing")
	return cmd
}

func newBonSendCmd() *cobra.Command {
	var bonID int

	cmd := &cobra.Command{
		Use:   "bon:send",
		Short: "Export a stored bon to Google Sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bonID == 0 {
				return fmt.Errorf("--bonId is required")
			}
			return sendBon(cmd.Context(), bonID)
		},
	}
	cmd.Flags().IntVar(&bonID, "bonId", 0, "stored bon id")
	return cmd
}

func newBonExportCmd() *cobra.Command {
	var bonID int

	cmd := &cobra.Command{
		Use:   "bon:export",
		Short: "Write the lines of a stored bon to an XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bonID == 0 {
				return fmt.Errorf("--bonId is required")
			}
			path, err := application.Exports.ExportXLSX(bonID)
			if err != nil {
				return err
			}
			success("xlsx written to %s", path)
			return nil
		},
	}
	cmd.Flags().IntVar(&bonID, "bonId", 0, "stored bon id")
	return cmd
}

func sendBon(ctx context.Context, bonID int) error {
	sub, err := application.Exports.SendBon(ctx, bonID)
	if err != nil {
		if f, ok := exporter.AsFailure(err); ok {
			_ = printJSON(map[string]any{"error": err.Error(), "history": f.History})
		}
		return err
	}
	success("bon %d exported attempts=%d range=%s", bonID, sub.Attempts, sub.Result.UpdatedRange)
	return nil
}
