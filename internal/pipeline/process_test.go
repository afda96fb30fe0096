package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"orderdesk/internal"
	"orderdesk/internal/storage"
)

func storeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSmokeEmailToOrders(t *testing.T) {
	db := openTestDB(t)
	rawBlob, err := os.ReadFile(filepath.Join("testdata", "sample_order.eml"))
	if err != nil {
		t.Fatal(err)
	}
	rawPath := storeFixture(t, "fixture.eml", string(rawBlob))

	email, err := db.UpsertEmail("imap", "<fixture-1@example.com>", "今日订单", "shop@example.com", "2026-10-19T08:00:00Z", "hash", rawPath, internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}

	proc := NewProcessingService(db, newTestIntake(t, db))
	res, err := proc.ProcessEmail(email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailProcessed || res.Created != 2 || res.Rejected != 2 {
		t.Fatalf("res=%+v", res)
	}

	// A second run replaces the orders of the first.
	if _, err := proc.ProcessByProviderMessageID("imap", "<fixture-1@example.com>"); err != nil {
		t.Fatal(err)
	}
	orders, err := db.ListOrdersByEmail(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders=%d", len(orders))
	}

	out := filepath.Join(t.TempDir(), "orders.xlsx")
	rows, err := db.GetOrderExportRows(internal.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if err := ExportOrdersToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}

func TestProcessPendingStatuses(t *testing.T) {
	db := openTestDB(t)
	mails := []struct {
		id, body, want string
	}{
		{"<order@x>", "Subject: 订单\r\n\r\n面包 10元\r\n订单信息\r\n1. 张三 面包2\r\n", internal.EmailProcessed},
		{"<news@x>", "Subject: hello\r\n\r\nSee you tomorrow.\r\n", internal.EmailSkipped},
		{"<nomarker@x>", "Subject: 下单\r\n\r\n1. 张三 面包2\r\n2. 李四 面包1\r\n", internal.EmailFailed},
	}
	for _, m := range mails {
		path := storeFixture(t, "m.eml", m.body)
		if _, err := db.UpsertEmail("imap", m.id, "", "", "", m.id, path, internal.EmailFetched); err != nil {
			t.Fatal(err)
		}
	}

	proc := NewProcessingService(db, newTestIntake(t, db))
	results, err := proc.ProcessPending(10, "imap")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d", len(results))
	}
	for _, m := range mails {
		row, err := db.GetEmailByProviderMessageID("imap", m.id)
		if err != nil || row == nil {
			t.Fatalf("row=%v err=%v", row, err)
		}
		if row.Status != m.want {
			t.Fatalf("%s status=%s want %s", m.id, row.Status, m.want)
		}
	}
}

func TestProcessByIDKeepsOrdersWhenCommitFails(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertCustomer(internal.Customer{ID: storage.MaxCustomerID - 1, Name: "老客户"}); err != nil {
		t.Fatal(err)
	}
	path := storeFixture(t, "order.eml", "Subject: 订单\r\n\r\n面包 10元\r\n订单信息\r\n1. 老客户 面包2\r\n")
	email, err := db.UpsertEmail("imap", "<again@x>", "订单", "", "", "h1", path, internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}

	proc := NewProcessingService(db, newTestIntake(t, db))
	res, err := proc.ProcessByID(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailProcessed || res.Created != 1 {
		t.Fatalf("res=%+v", res)
	}

	// Two new customers need two ids but only one is left.
	if err := os.WriteFile(path, []byte("Subject: 订单\r\n\r\n面包 10元\r\n订单信息\r\n1. 王五 面包2\r\n2. 赵六 面包1\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := proc.ProcessByID(email.ID); !errors.Is(err, storage.ErrCustomerIDsExhausted) {
		t.Fatalf("err=%v", err)
	}

	orders, err := db.ListOrdersByEmail(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].CustomerName != "老客户" {
		t.Fatalf("orders=%+v", orders)
	}
	all, err := db.ListCustomers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("customers=%+v", all)
	}
}

func TestProcessByIDUnknown(t *testing.T) {
	db := openTestDB(t)
	proc := NewProcessingService(db, newTestIntake(t, db))
	if _, err := proc.ProcessByID(42); err == nil {
		t.Fatal("expected error")
	}
}
