package connectors

import (
	"bytes"
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"ocrr/internal"
)

// MailConnector pulls raw messages from a mailbox or label.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// Headers are the envelope fields kept next to a stored message.
type Headers struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
}

// ParseHeaders reads the envelope of a raw RFC 822 message. Missing or
// unparseable dates fall back to now.
func ParseHeaders(raw []byte, now time.Time) Headers {
	h := Headers{ReceivedAt: now.UTC().Format(time.RFC3339)}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return h
	}
	h.MessageID = strings.TrimSpace(env.GetHeader("Message-ID"))
	h.Subject = env.GetHeader("Subject")
	h.From = env.GetHeader("From")
	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			h.ReceivedAt = t.UTC().Format(time.RFC3339)
		}
	}
	return h
}
