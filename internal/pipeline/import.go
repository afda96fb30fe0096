package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"orderdesk/internal"
	"orderdesk/internal/storage"
	"orderdesk/internal/util"
)

var ErrEmptyImport = errors.New("import file has no customer rows")

// ImportError points at the first spreadsheet row that failed validation.
// Row is the 1-based sheet row, header included.
type ImportError struct {
	Row    int
	Reason string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ParseCustomersXLSX reads the first sheet of a customer workbook. Columns
// are found by header so their order does not matter.
func ParseCustomersXLSX(content []byte) ([]internal.Customer, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyImport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrEmptyImport
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"名称", "地址"} {
		if _, ok := col[required]; !ok {
			return nil, &ImportError{Row: 1, Reason: "missing column " + required}
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	seen := map[int]bool{}
	out := []internal.Customer{}
	for n, row := range rows[1:] {
		rowNo := n + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		c := internal.Customer{
			Name:    cell(row, "名称"),
			Address: cell(row, "地址"),
			Remarks: cell(row, "备注"),
		}
		if c.Name == "" || c.Address == "" {
			return nil, &ImportError{Row: rowNo, Reason: "名称和地址不能为空"}
		}
		if nick := cell(row, "昵称"); nick != "" {
			c.Nickname = util.StringPtr(nick)
		}

		if raw := cell(row, "客户ID"); raw != "" {
			id, err := parseCustomerID(raw)
			if err != nil {
				return nil, &ImportError{Row: rowNo, Reason: err.Error()}
			}
			if seen[id] {
				return nil, &ImportError{Row: rowNo, Reason: fmt.Sprintf("ID %d 重复", id)}
			}
			seen[id] = true
			c.ID = id
		}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, ErrEmptyImport
	}
	return out, nil
}

// parseCustomerID accepts exactly seven digits, not below the id floor.
func parseCustomerID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || len(raw) != 7 || id < storage.MinCustomerID {
		return 0, fmt.Errorf("ID %s 必须是7位数字且大于等于%d", raw, storage.MinCustomerID)
	}
	return id, nil
}

// ImportCustomersFromXLSX validates the workbook and stores every customer,
// or none of them.
func ImportCustomersFromXLSX(db *storage.DB, content []byte) ([]internal.Customer, error) {
	customers, err := ParseCustomersXLSX(content)
	if err != nil {
		return nil, err
	}
	return db.InsertCustomers(customers)
}
