package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ocrr/internal/connectors"
	"ocrr/internal/listener"
)

func newMailFetchCmd() *cobra.Command {
	var (
		provider string
		label    string
		max      int
	)

	cmd := &cobra.Command{
		Use:   "mail:fetch",
		Short: "Fetch unread mail and store it for processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := application
			conn, err := listener.NewConnector(cmd.Context(), provider, a.Cfg, a.Log)
			if err != nil {
				return err
			}
			res, err := connectors.NewFetchService(a.DB, a.Cfg.RawMailDir, conn, a.Log).FetchAndStore(cmd.Context(), label, max)
			if err != nil {
				return err
			}
			success("mail fetch done provider=%s fetched=%d stored=%d known=%d", provider, res.Fetched, res.Stored, res.Known)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "gmail", "gmail|imap")
	cmd.Flags().StringVar(&label, "label", "INBOX", "mailbox or label")
	cmd.Flags().IntVar(&max, "max", 50, "max messages")
	return cmd
}

func newMailProcessCmd() *cobra.Command {
	var (
		provider  string
		messageID string
		batch     int
	)

	cmd := &cobra.Command{
		Use:   "mail:process",
		Short: "Turn stored mail into bons",
		RunE: func(cmd *cobra.Command, args []string) error {
			proc := application.Processor
			if strings.TrimSpace(messageID) != "" {
				res, err := proc.ProcessByProviderMessageID(cmd.Context(), provider, messageID)
				if err != nil {
					return err
				}
				if res.Skipped {
					warning("email skipped, not an order form")
					return nil
				}
				success("processed email bon=%d lines=%d", res.BonID, len(res.Items))
				return nil
			}
			emails, lines, err := proc.ProcessPending(cmd.Context(), batch, provider)
			if err != nil {
				return err
			}
			success("processed pending emails=%d lines=%d", emails, lines)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "gmail", "gmail|imap")
	cmd.Flags().StringVar(&messageID, "messageId", "", "specific Message-ID")
	cmd.Flags().IntVar(&batch, "batch", 20, "batch size")
	return cmd
}

func newMailListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mail:listen",
		Short: "Poll the mailbox and process new bons until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := application
			provider := a.Cfg.MailListenerProvider
			conn, err := listener.NewConnector(cmd.Context(), provider, a.Cfg, a.Log)
			if err != nil {
				return err
			}
			return listener.NewService(a.DB, a.Cfg, provider, conn, a.Processor, a.Exports, a.Log).Run(cmd.Context())
		},
	}
}
