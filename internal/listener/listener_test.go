package listener

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"orderdesk/internal"
	"orderdesk/internal/config"
	"orderdesk/internal/connectors"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

type stubConnector struct {
	messages []internal.FetchedMailMessage
}

func (s stubConnector) Name() string { return "imap" }

func (s stubConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return s.messages, nil
}

func TestSanitizeMessageID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<a1@example.com>", "_a1_example.com_"},
		{"plain", "plain"},
		{"x/y:z", "x_y_z"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := sanitizeMessageID(tc.in); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestRunCycleExportsOrderMail(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Config{
		RawMailDir:                filepath.Join(tmp, "raw"),
		OutputDir:                 filepath.Join(tmp, "out"),
		MailListenerProvider:      "imap",
		MailListenerLabel:         "INBOX",
		MailListenerFetchMax:      10,
		MailListenerProcessBatch:  10,
		MailListenerAutoExport:    true,
		IntakeDefaultDeliveryDays: 1,
	}
	stub := stubConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<o1@x>", Raw: []byte("Subject: 订单\r\n\r\n面包 10元\r\n订单信息\r\n1. 张三 面包2\r\n")},
		{Provider: "imap", MessageID: "<n1@x>", Raw: []byte("Subject: hello\r\n\r\nsee you\r\n")},
	}}

	intake := pipeline.NewIntakeService(db, cfg, nil, nil)
	svc := NewService(db, cfg, intake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.connect = func(string) (connectors.MailConnector, error) { return stub, nil }

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	order, err := db.MustEmailByProviderMessageID("imap", "<o1@x>")
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != internal.EmailExported {
		t.Fatalf("order mail status=%s", order.Status)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "listener", "1__o1_x_.xlsx")); err != nil {
		t.Fatal(err)
	}

	news, err := db.MustEmailByProviderMessageID("imap", "<n1@x>")
	if err != nil {
		t.Fatal(err)
	}
	if news.Status != internal.EmailSkipped {
		t.Fatalf("news mail status=%s", news.Status)
	}
}
