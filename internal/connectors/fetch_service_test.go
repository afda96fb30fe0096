package connectors

import (
	"context"
	"path/filepath"
	"testing"

	"orderdesk/internal"
	"orderdesk/internal/storage"
)

type stubConnector struct {
	messages []internal.FetchedMailMessage
}

func (s stubConnector) Name() string { return "stub" }

func (s stubConnector) FetchInbox(_ context.Context, _ string, max int) ([]internal.FetchedMailMessage, error) {
	if max < len(s.messages) {
		return s.messages[:max], nil
	}
	return s.messages, nil
}

func TestFetchAndStoreKeepsProcessedStatus(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stub := stubConnector{messages: []internal.FetchedMailMessage{
		{Provider: "stub", MessageID: "<a@x>", Subject: "订单", Raw: []byte("Subject: 订单\r\n\r\n订单信息\r\n")},
		{Provider: "stub", MessageID: "<b@x>", Subject: "hi", Raw: []byte("Subject: hi\r\n\r\nhello\r\n")},
	}}
	svc := NewFetchService(db, filepath.Join(tmp, "raw"), stub)

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 || res.Known != 0 {
		t.Fatalf("res=%+v", res)
	}

	row, err := db.MustEmailByProviderMessageID("stub", "<a@x>")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(row.RawRef) != filepath.Join(tmp, "raw", "stub") {
		t.Fatalf("rawRef=%s", row.RawRef)
	}
	if err := db.UpdateEmailStatus(row.ID, internal.EmailProcessed); err != nil {
		t.Fatal(err)
	}

	res, err = svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 1 || res.Known != 1 {
		t.Fatalf("res=%+v", res)
	}
	row, err = db.MustEmailByProviderMessageID("stub", "<a@x>")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != internal.EmailProcessed {
		t.Fatalf("status=%s", row.Status)
	}
}

func TestFetchAndStoreCancelled(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stub := stubConnector{messages: []internal.FetchedMailMessage{{Provider: "stub", MessageID: "<a@x>", Raw: []byte("x")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetchService(db, tmp, stub).FetchAndStore(ctx, "INBOX", 10); err == nil {
		t.Fatal("expected context error")
	}
}
