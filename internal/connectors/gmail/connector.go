package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"orderdesk/internal"
	"orderdesk/internal/config"
)

const providerName = "gmail"

type Connector struct {
	service       *gmail.Service
	subjectFilter string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ name, value string }{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req.name, req.value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, subjectFilter: strings.TrimSpace(cfg.MailSubjectFilter)}, nil
}

func (c *Connector) Name() string { return providerName }

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	listCall := c.service.Users.Messages.List("me").LabelIds(label).Context(ctx)
	if max > 0 {
		listCall = listCall.MaxResults(int64(max))
	}
	if q := searchQuery(c.subjectFilter); q != "" {
		listCall = listCall.Q(q)
	}
	listResp, err := listCall.Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}
		rawResp, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if rawResp.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, fromRaw(ref.Id, raw))
	}
	return out, nil
}

// fromRaw reads the envelope headers from the raw message, so one API call
// per message is enough.
func fromRaw(gmailID string, raw []byte) internal.FetchedMailMessage {
	msg := internal.FetchedMailMessage{
		Provider:   providerName,
		MessageID:  gmailID,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return msg
	}
	if id := strings.TrimSpace(env.GetHeader("Message-ID")); id != "" {
		msg.MessageID = id
	}
	msg.Subject = env.GetHeader("Subject")
	msg.From = env.GetHeader("From")
	if t, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		msg.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return msg
}

func searchQuery(subjectFilter string) string {
	if subjectFilter == "" {
		return ""
	}
	return fmt.Sprintf("subject:(%s)", subjectFilter)
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
