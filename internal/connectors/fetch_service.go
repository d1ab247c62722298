package connectors

import (
	"context"

	"github.com/rs/zerolog"

	"ocrr/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       zerolog.Logger
}

type FetchResult struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
	Known   int `json:"known"`
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log zerolog.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, isNew, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if !isNew {
			res.Known++
			continue
		}
		res.Stored++
		s.log.Debug().Int("emailId", row.ID).Str("provider", msg.Provider).Str("subject", msg.Subject).Msg("mail stored")
	}
	return res, nil
}
