package connectors

import (
	"context"
	"fmt"
	"strings"

	"orderdesk/internal"
	"orderdesk/internal/config"
	gmailconnector "orderdesk/internal/connectors/gmail"
	imapconnector "orderdesk/internal/connectors/imap"
)

// MailConnector pulls raw messages from one mailbox provider.
type MailConnector interface {
	Name() string
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider ("gmail" or "imap").
func New(cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
