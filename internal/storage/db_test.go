package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"orderdesk/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strp(v string) *string { return &v }

func fp(v float64) *float64 { return &v }

func TestCustomerIDs(t *testing.T) {
	db := openTestDB(t)

	first, err := db.InsertCustomer(internal.Customer{Name: "五九八七", Address: "北京市朝阳区"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != MinCustomerID+1 {
		t.Fatalf("first id=%d", first.ID)
	}

	if _, err := db.InsertCustomer(internal.Customer{ID: 2000000, Name: "4B1007", Address: "北京市海淀区"}); err != nil {
		t.Fatal(err)
	}
	next, err := db.NextCustomerID()
	if err != nil {
		t.Fatal(err)
	}
	if next != 2000001 {
		t.Fatalf("next=%d", next)
	}

	_, err = db.InsertCustomer(internal.Customer{ID: 2000000, Name: "dup"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("got %v", err)
	}
}

func TestInsertCustomersIsAtomic(t *testing.T) {
	db := openTestDB(t)
	_, err := db.InsertCustomers([]internal.Customer{
		{ID: 1000005, Name: "甲"},
		{ID: 1000005, Name: "乙"},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("got %v", err)
	}
	all, err := db.ListCustomers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("partial import kept %d rows", len(all))
	}
}

func TestFindCustomerByName(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertCustomers([]internal.Customer{
		{Name: "张三", Nickname: strp("小张")},
		{Name: "小张", Address: "另一个人"},
	}); err != nil {
		t.Fatal(err)
	}

	c, err := db.FindCustomerByName("小张")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Address != "另一个人" {
		t.Fatalf("name match should win over nickname: %+v", c)
	}

	c, err = db.FindCustomerByName("张三")
	if err != nil || c == nil || c.Nickname == nil || *c.Nickname != "小张" {
		t.Fatalf("c=%+v err=%v", c, err)
	}

	c, err = db.FindCustomerByName("李四")
	if err != nil || c != nil {
		t.Fatalf("c=%+v err=%v", c, err)
	}
}

func TestCustomerUpdateDelete(t *testing.T) {
	db := openTestDB(t)
	c, err := db.InsertCustomer(internal.Customer{Name: "张三"})
	if err != nil {
		t.Fatal(err)
	}
	c.Address = "上海"
	ok, err := db.UpdateCustomer(c)
	if err != nil || !ok {
		t.Fatalf("update ok=%v err=%v", ok, err)
	}
	got, err := db.GetCustomer(c.ID)
	if err != nil || got == nil || got.Address != "上海" {
		t.Fatalf("got=%+v err=%v", got, err)
	}

	ok, err = db.DeleteCustomer(c.ID)
	if err != nil || !ok {
		t.Fatalf("delete ok=%v err=%v", ok, err)
	}
	ok, err = db.DeleteCustomer(c.ID)
	if err != nil || ok {
		t.Fatalf("second delete ok=%v err=%v", ok, err)
	}
}

func TestOrdersSearchAndDelete(t *testing.T) {
	db := openTestDB(t)
	customer, err := db.InsertCustomer(internal.Customer{Name: "张三", Address: "北京"})
	if err != nil {
		t.Fatal(err)
	}

	orders, err := db.InsertOrders([]internal.OrderRecord{
		{CustomerID: customer.ID, CustomerName: "张三", ProductName: "面包", Quantity: 2, UnitPrice: fp(10), TotalPrice: fp(20), DeliveryDate: "2024-03-20"},
		{CustomerID: customer.ID, CustomerName: "张三", ProductName: "豆腐", Quantity: 0.5, DeliveryDate: "2024-03-22"},
		{CustomerID: 42, CustomerName: "李四", ProductName: "巨峰", Quantity: 1, UnitPrice: fp(12.5), TotalPrice: fp(12.5), DeliveryDate: "2024-03-21"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if orders[2].ID == 0 {
		t.Fatal("ids not assigned")
	}

	got, err := db.GetOrder(orders[1].ID)
	if err != nil || got == nil {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	if got.UnitPrice != nil || got.TotalPrice != nil {
		t.Fatalf("unpriced order read back with price: %+v", got)
	}

	byCustomer, err := db.SearchOrders(internal.OrderFilter{CustomerID: &customer.ID})
	if err != nil || len(byCustomer) != 2 {
		t.Fatalf("byCustomer=%d err=%v", len(byCustomer), err)
	}
	byDate, err := db.SearchOrders(internal.OrderFilter{StartDate: "2024-03-20", EndDate: "2024-03-21"})
	if err != nil || len(byDate) != 2 {
		t.Fatalf("byDate=%d err=%v", len(byDate), err)
	}

	rows, err := db.GetOrderExportRows(internal.OrderFilter{})
	if err != nil || len(rows) != 3 || rows[0].CustomerAddress != "北京" {
		t.Fatalf("rows=%+v err=%v", rows, err)
	}

	n, err := db.DeleteOrders([]int{orders[0].ID, orders[2].ID, 9999})
	if err != nil || n != 2 {
		t.Fatalf("deleted=%d err=%v", n, err)
	}
	rest, err := db.ListOrders()
	if err != nil || len(rest) != 1 {
		t.Fatalf("rest=%d err=%v", len(rest), err)
	}
}

func TestEmailOrders(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("imap", "<m1@example.com>", "订单", "shop@example.com", "2026-02-08T00:00:00Z", "hash", "/tmp/x.eml", internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertOrder(internal.OrderRecord{CustomerID: 1, CustomerName: "张三", ProductName: "面包", Quantity: 1, EmailID: &email.ID}); err != nil {
		t.Fatal(err)
	}
	linked, err := db.ListOrdersByEmail(email.ID)
	if err != nil || len(linked) != 1 {
		t.Fatalf("linked=%d err=%v", len(linked), err)
	}
	if err := db.ClearEmailOrders(email.ID); err != nil {
		t.Fatal(err)
	}
	linked, err = db.ListOrdersByEmail(email.ID)
	if err != nil || len(linked) != 0 {
		t.Fatalf("linked=%d err=%v", len(linked), err)
	}

	if err := db.UpdateEmailStatus(email.ID, internal.EmailProcessed); err != nil {
		t.Fatal(err)
	}
	pending, err := db.ListEmailsByStatus(internal.EmailFetched, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending=%d err=%v", len(pending), err)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	defaults := internal.Settings{Model: "glm-4-flash", APIURL: "https://api.example.com"}
	got, err := db.GetSettings(defaults)
	if err != nil || got != defaults {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	if err := db.SaveSettings(internal.Settings{Model: "m2", APIKey: "k", APIURL: "u"}); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetSettings(defaults)
	if err != nil || got.Model != "m2" || got.APIKey != "k" {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestNextCustomerIDExhausted(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertCustomer(internal.Customer{ID: MaxCustomerID, Name: "末位"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.NextCustomerID(); !errors.Is(err, ErrCustomerIDsExhausted) {
		t.Fatalf("got %v", err)
	}
	if _, err := db.InsertCustomer(internal.Customer{Name: "新客户"}); !errors.Is(err, ErrCustomerIDsExhausted) {
		t.Fatalf("got %v", err)
	}
}

func TestCommitIntake(t *testing.T) {
	db := openTestDB(t)
	known, err := db.InsertCustomer(internal.Customer{Name: "张三"})
	if err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<m2@example.com>", "订单", "", "", "hash", "/tmp/y.eml", internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertOrder(internal.OrderRecord{CustomerID: known.ID, CustomerName: "张三", ProductName: "旧单", Quantity: 1, EmailID: &email.ID}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetEmailByID(email.ID)
	if err != nil || got == nil || got.MessageID != "<m2@example.com>" {
		t.Fatalf("got=%+v err=%v", got, err)
	}

	written, err := db.CommitIntake(IntakeBatch{
		ReplaceEmailID: &email.ID,
		NewCustomers:   []internal.Customer{{Name: "李四"}},
		Orders: []internal.OrderRecord{
			{CustomerID: known.ID, CustomerName: "张三", ProductName: "面包", Quantity: 2, EmailID: &email.ID},
			{CustomerName: "李四", ProductName: "豆腐", Quantity: 1, EmailID: &email.ID},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(written.Customers) != 1 || written.Customers[0].ID != known.ID+1 {
		t.Fatalf("customers=%+v", written.Customers)
	}
	if written.Orders[1].CustomerID != known.ID+1 {
		t.Fatalf("orders=%+v", written.Orders)
	}
	linked, err := db.ListOrdersByEmail(email.ID)
	if err != nil || len(linked) != 2 || linked[0].ProductName != "面包" {
		t.Fatalf("linked=%+v err=%v", linked, err)
	}
}

func TestCommitIntakeRollsBack(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("imap", "<m3@example.com>", "订单", "", "", "hash", "/tmp/z.eml", internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertOrder(internal.OrderRecord{CustomerID: 1, CustomerName: "张三", ProductName: "旧单", Quantity: 1, EmailID: &email.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec(`CREATE TRIGGER reject_orders BEFORE INSERT ON orders BEGIN SELECT RAISE(ABORT, 'orders closed'); END`); err != nil {
		t.Fatal(err)
	}

	_, err = db.CommitIntake(IntakeBatch{
		ReplaceEmailID: &email.ID,
		NewCustomers:   []internal.Customer{{Name: "李四"}},
		Orders:         []internal.OrderRecord{{CustomerName: "李四", ProductName: "豆腐", Quantity: 1, EmailID: &email.ID}},
	})
	if err == nil {
		t.Fatal("expected insert failure")
	}

	customers, err := db.ListCustomers()
	if err != nil || len(customers) != 0 {
		t.Fatalf("customers=%+v err=%v", customers, err)
	}
	linked, err := db.ListOrdersByEmail(email.ID)
	if err != nil || len(linked) != 1 || linked[0].ProductName != "旧单" {
		t.Fatalf("linked=%+v err=%v", linked, err)
	}
}

func TestCommitIntakeUnknownCustomer(t *testing.T) {
	db := openTestDB(t)
	_, err := db.CommitIntake(IntakeBatch{
		NewCustomers: []internal.Customer{{Name: "李四"}},
		Orders:       []internal.OrderRecord{{CustomerName: "王五", ProductName: "面包", Quantity: 1}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	customers, err := db.ListCustomers()
	if err != nil || len(customers) != 0 {
		t.Fatalf("customers=%+v err=%v", customers, err)
	}
}
