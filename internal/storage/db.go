package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"orderdesk/internal"
)

// Customer ids are seven digits. MinCustomerID is the floor for generated ids.
const (
	MinCustomerID = 1000000
	MaxCustomerID = 9999999
)

var (
	ErrDuplicateID          = errors.New("id already exists")
	ErrCustomerIDsExhausted = errors.New("no seven-digit customer id left")
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS customers (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  nickname TEXT,
  address TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_customers_name ON customers(name);
CREATE INDEX IF NOT EXISTS idx_customers_nickname ON customers(nickname);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  customerId INTEGER NOT NULL,
  customerName TEXT NOT NULL,
  productName TEXT NOT NULL,
  quantity REAL NOT NULL,
  unitPrice REAL,
  totalPrice REAL,
  deliveryDate TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  emailId INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customerId);
CREATE INDEX IF NOT EXISTS idx_orders_delivery ON orders(deliveryDate);
CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(emailId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// Customers

const customerColumns = `id, name, nickname, address, remarks, createdAt`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (internal.Customer, error) {
	var c internal.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Nickname, &c.Address, &c.Remarks, &c.CreatedAt)
	return c, err
}

// NextCustomerID returns one past the highest id, never below MinCustomerID+1.
func (d *DB) NextCustomerID() (int, error) {
	return nextCustomerID(d.conn)
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func nextCustomerID(q queryer) (int, error) {
	var maxID sql.NullInt64
	if err := q.QueryRow(`SELECT MAX(id) FROM customers`).Scan(&maxID); err != nil {
		return 0, err
	}
	if !maxID.Valid || maxID.Int64 < MinCustomerID {
		return MinCustomerID + 1, nil
	}
	if maxID.Int64 >= MaxCustomerID {
		return 0, ErrCustomerIDsExhausted
	}
	return int(maxID.Int64) + 1, nil
}

// InsertCustomer stores c, assigning the next id when c.ID is zero.
func (d *DB) InsertCustomer(c internal.Customer) (internal.Customer, error) {
	out, err := d.InsertCustomers([]internal.Customer{c})
	if err != nil {
		return internal.Customer{}, err
	}
	return out[0], nil
}

// InsertCustomers stores all customers in one transaction; nothing is kept
// if any id collides.
func (d *DB) InsertCustomers(customers []internal.Customer) ([]internal.Customer, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out, err := insertCustomers(tx, customers)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertCustomers(tx *sql.Tx, customers []internal.Customer) ([]internal.Customer, error) {
	out := make([]internal.Customer, 0, len(customers))
	for _, c := range customers {
		if c.ID == 0 {
			id, err := nextCustomerID(tx)
			if err != nil {
				return nil, err
			}
			c.ID = id
		} else {
			var exists int
			if err := tx.QueryRow(`SELECT COUNT(1) FROM customers WHERE id = ?`, c.ID).Scan(&exists); err != nil {
				return nil, err
			}
			if exists > 0 {
				return nil, fmt.Errorf("customer %d: %w", c.ID, ErrDuplicateID)
			}
		}

		if _, err := tx.Exec(`INSERT INTO customers (id, name, nickname, address, remarks) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Nickname, c.Address, c.Remarks); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *DB) GetCustomer(id int) (*internal.Customer, error) {
	c, err := scanCustomer(d.conn.QueryRow(`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCustomerByName matches the name column first, then the nickname.
func (d *DB) FindCustomerByName(name string) (*internal.Customer, error) {
	c, err := scanCustomer(d.conn.QueryRow(`
SELECT `+customerColumns+` FROM customers
WHERE name = ? OR nickname = ?
ORDER BY CASE WHEN name = ? THEN 0 ELSE 1 END, id ASC
LIMIT 1`, name, name, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *DB) ListCustomers() ([]internal.Customer, error) {
	rows, err := d.conn.Query(`SELECT ` + customerColumns + ` FROM customers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCustomer reports false when no customer has c.ID.
func (d *DB) UpdateCustomer(c internal.Customer) (bool, error) {
	res, err := d.conn.Exec(`UPDATE customers SET name = ?, nickname = ?, address = ?, remarks = ? WHERE id = ?`,
		c.Name, c.Nickname, c.Address, c.Remarks, c.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (d *DB) DeleteCustomer(id int) (bool, error) {
	res, err := d.conn.Exec(`DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Orders

const orderColumns = `id, customerId, customerName, productName, quantity, unitPrice, totalPrice, deliveryDate, remarks, emailId, createdAt`

func scanOrder(row rowScanner) (internal.OrderRecord, error) {
	var o internal.OrderRecord
	err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.ProductName, &o.Quantity, &o.UnitPrice, &o.TotalPrice,
		&o.DeliveryDate, &o.Remarks, &o.EmailID, &o.CreatedAt)
	return o, err
}

func (d *DB) InsertOrder(o internal.OrderRecord) (internal.OrderRecord, error) {
	out, err := d.InsertOrders([]internal.OrderRecord{o})
	if err != nil {
		return internal.OrderRecord{}, err
	}
	return out[0], nil
}

func (d *DB) InsertOrders(orders []internal.OrderRecord) ([]internal.OrderRecord, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out, err := insertOrders(tx, orders)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertOrders(tx *sql.Tx, orders []internal.OrderRecord) ([]internal.OrderRecord, error) {
	stmt, err := tx.Prepare(`
INSERT INTO orders (customerId, customerName, productName, quantity, unitPrice, totalPrice, deliveryDate, remarks, emailId)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	out := make([]internal.OrderRecord, 0, len(orders))
	for _, o := range orders {
		res, err := stmt.Exec(o.CustomerID, o.CustomerName, o.ProductName, o.Quantity, o.UnitPrice, o.TotalPrice,
			o.DeliveryDate, o.Remarks, o.EmailID)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		o.ID = int(id)
		out = append(out, o)
	}
	return out, nil
}

// IntakeBatch is everything one intake writes. CommitIntake stores it in a
// single transaction.
type IntakeBatch struct {
	// ReplaceEmailID, when set, drops that mail's earlier orders first.
	ReplaceEmailID *int
	// NewCustomers get generated ids.
	NewCustomers []internal.Customer
	// Orders with a zero CustomerID belong to the new customer of the same name.
	Orders []internal.OrderRecord
}

type IntakeWrite struct {
	Customers []internal.Customer
	Orders    []internal.OrderRecord
}

// CommitIntake writes b atomically: on error nothing from b is kept and
// replaced orders are still in place.
func (d *DB) CommitIntake(b IntakeBatch) (IntakeWrite, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return IntakeWrite{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if b.ReplaceEmailID != nil {
		if _, err := tx.Exec(`DELETE FROM orders WHERE emailId = ?`, *b.ReplaceEmailID); err != nil {
			return IntakeWrite{}, err
		}
	}

	customers, err := insertCustomers(tx, b.NewCustomers)
	if err != nil {
		return IntakeWrite{}, err
	}
	byName := make(map[string]int, len(customers))
	for _, c := range customers {
		byName[c.Name] = c.ID
	}

	orders := make([]internal.OrderRecord, len(b.Orders))
	for i, o := range b.Orders {
		if o.CustomerID == 0 {
			id, ok := byName[o.CustomerName]
			if !ok {
				return IntakeWrite{}, fmt.Errorf("order for %q: customer not in batch", o.CustomerName)
			}
			o.CustomerID = id
		}
		orders[i] = o
	}
	created, err := insertOrders(tx, orders)
	if err != nil {
		return IntakeWrite{}, err
	}

	if err := tx.Commit(); err != nil {
		return IntakeWrite{}, err
	}
	return IntakeWrite{Customers: customers, Orders: created}, nil
}

func (d *DB) GetOrder(id int) (*internal.OrderRecord, error) {
	o, err := scanOrder(d.conn.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) ListOrders() ([]internal.OrderRecord, error) {
	return d.SearchOrders(internal.OrderFilter{})
}

// SearchOrders filters by customer and by an inclusive delivery date range.
// Dates compare as YYYY-MM-DD strings.
func (d *DB) SearchOrders(f internal.OrderFilter) ([]internal.OrderRecord, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if f.CustomerID != nil {
		where = append(where, "customerId = ?")
		args = append(args, *f.CustomerID)
	}
	if f.StartDate != "" {
		where = append(where, "deliveryDate >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		where = append(where, "deliveryDate <= ?")
		args = append(args, f.EndDate)
	}
	return d.queryOrders(`SELECT `+orderColumns+` FROM orders WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`, args...)
}

func (d *DB) ListOrdersByEmail(emailID int) ([]internal.OrderRecord, error) {
	return d.queryOrders(`SELECT `+orderColumns+` FROM orders WHERE emailId = ? ORDER BY id ASC`, emailID)
}

func (d *DB) queryOrders(query string, args ...any) ([]internal.OrderRecord, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.OrderRecord{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (d *DB) UpdateOrder(o internal.OrderRecord) (bool, error) {
	res, err := d.conn.Exec(`
UPDATE orders SET customerId = ?, customerName = ?, productName = ?, quantity = ?, unitPrice = ?, totalPrice = ?,
  deliveryDate = ?, remarks = ?
WHERE id = ?`,
		o.CustomerID, o.CustomerName, o.ProductName, o.Quantity, o.UnitPrice, o.TotalPrice, o.DeliveryDate, o.Remarks, o.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteOrders removes the given ids and returns how many rows went away.
func (d *DB) DeleteOrders(ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := d.conn.Exec(`DELETE FROM orders WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearEmailOrders drops orders created by an earlier run over the same mail.
func (d *DB) ClearEmailOrders(emailID int) error {
	_, err := d.conn.Exec(`DELETE FROM orders WHERE emailId = ?`, emailID)
	return err
}

func (d *DB) GetOrderExportRows(f internal.OrderFilter) ([]internal.OrderExportRow, error) {
	orders, err := d.SearchOrders(f)
	if err != nil {
		return nil, err
	}
	customers, err := d.ListCustomers()
	if err != nil {
		return nil, err
	}
	byID := make(map[int]internal.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}

	out := make([]internal.OrderExportRow, 0, len(orders))
	for _, o := range orders {
		row := internal.OrderExportRow{OrderRecord: o}
		if c, ok := byID[o.CustomerID]; ok {
			row.CustomerName = c.Name
			row.CustomerAddress = c.Address
		}
		out = append(out, row)
	}
	return out, nil
}

// Emails

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(row rowScanner) (internal.EmailRow, error) {
	var e internal.EmailRow
	err := row.Scan(&e.ID, &e.Provider, &e.MessageID, &e.Subject, &e.Sender, &e.ReceivedAt, &e.Hash, &e.Status, &e.RawRef)
	return e, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

// Runs and metadata

func (d *DB) InsertRun(traceID string, emailID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

// CountRuns is used by the CLI summary and by tests.
func (d *DB) CountRuns() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(1) FROM runs`).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

const (
	settingsModel  = "settings.model"
	settingsAPIKey = "settings.apiKey"
	settingsAPIURL = "settings.apiUrl"
)

// GetSettings overlays stored settings on defaults.
func (d *DB) GetSettings(defaults internal.Settings) (internal.Settings, error) {
	out := defaults
	for key, dst := range map[string]*string{settingsModel: &out.Model, settingsAPIKey: &out.APIKey, settingsAPIURL: &out.APIURL} {
		v, err := d.GetMetadata(key)
		if err != nil {
			return internal.Settings{}, err
		}
		if v != nil {
			*dst = *v
		}
	}
	return out, nil
}

func (d *DB) SaveSettings(s internal.Settings) error {
	for key, value := range map[string]string{settingsModel: s.Model, settingsAPIKey: s.APIKey, settingsAPIURL: s.APIURL} {
		if err := d.SetMetadata(key, value); err != nil {
			return err
		}
	}
	return nil
}
