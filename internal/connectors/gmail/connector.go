package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/connectors"
)

const provider = "gmail"

type Connector struct {
	service *gmail.Service
	log     zerolog.Logger
	now     func() time.Time
}

// NewConnector authenticates with the refresh token from the environment.
// Extra client options are appended after the token source.
func NewConnector(ctx context.Context, cfg config.Config, log zerolog.Logger, opts ...option.ClientOption) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return newConnector(svc, log), nil
}

func newConnector(svc *gmail.Service, log zerolog.Logger) *Connector {
	return &Connector{service: svc, log: log.With().Str("provider", provider).Logger(), now: time.Now}
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, msgRef := range listResp.Messages {
		if msgRef.Id == "" {
			continue
		}
		rawResp, err := c.service.Users.Messages.Get("me", msgRef.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get gmail message %s: %w", msgRef.Id, err)
		}
		if rawResp.Raw == "" {
			c.log.Debug().Str("id", msgRef.Id).Msg("message without raw payload")
			continue
		}

		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		headers := connectors.ParseHeaders(rawBytes, c.now())
		if headers.MessageID == "" {
			headers.MessageID = msgRef.Id
		}
		out = append(out, internal.FetchedMailMessage{
			Provider:   provider,
			MessageID:  headers.MessageID,
			Subject:    headers.Subject,
			From:       headers.From,
			ReceivedAt: headers.ReceivedAt,
			Raw:        rawBytes,
		})
	}

	c.log.Debug().Str("label", label).Int("count", len(out)).Msg("gmail fetch")
	return out, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
