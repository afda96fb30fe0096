package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"orderdesk/internal"
	"orderdesk/internal/util"
)

func TestCustomersExportImportRoundTrip(t *testing.T) {
	customers := []internal.Customer{
		{ID: 1000001, Name: "张三", Nickname: util.StringPtr("三哥"), Address: "一号楼", Remarks: "老客户"},
		{ID: 1000002, Name: "李四", Address: "二号楼"},
	}
	f, err := CustomersWorkbook(customers)
	if err != nil {
		t.Fatal(err)
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}

	got, err := ParseCustomersXLSX(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].ID != 1000001 || got[0].Name != "张三" || got[0].Nickname == nil || *got[0].Nickname != "三哥" || got[0].Remarks != "老客户" {
		t.Fatalf("got[0]=%+v", got[0])
	}
	if got[1].Nickname != nil || got[1].Address != "二号楼" {
		t.Fatalf("got[1]=%+v", got[1])
	}
}

func TestParseCustomersXLSXValidation(t *testing.T) {
	cases := []struct {
		name string
		rows [][]any
		row  int
	}{
		{"missing address", [][]any{{"名称", "地址"}, {"张三", ""}}, 2},
		{"short id", [][]any{{"客户ID", "名称", "地址"}, {"12345", "张三", "一号楼"}}, 2},
		{"duplicate id", [][]any{{"客户ID", "名称", "地址"}, {"1000005", "张三", "一号楼"}, {"1000005", "李四", "二号楼"}}, 3},
		{"missing column", [][]any{{"名称", "电话"}, {"张三", "123"}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCustomersXLSX(mkXLSX(tc.rows))
			var ie *ImportError
			if !errors.As(err, &ie) {
				t.Fatalf("err=%v", err)
			}
			if ie.Row != tc.row {
				t.Fatalf("row=%d want %d", ie.Row, tc.row)
			}
		})
	}

	if _, err := ParseCustomersXLSX(mkXLSX([][]any{{"名称", "地址"}})); !errors.Is(err, ErrEmptyImport) {
		t.Fatalf("err=%v", err)
	}
}

func TestImportCustomersFromXLSX(t *testing.T) {
	db := openTestDB(t)
	blob := mkXLSX([][]any{
		{"名称", "昵称", "地址", "客户ID"},
		{"张三", "三哥", "一号楼", ""},
		{"李四", "", "二号楼", "1000100"},
	})
	got, err := ImportCustomersFromXLSX(db, blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID < 1000000 || got[1].ID != 1000100 {
		t.Fatalf("got=%+v", got)
	}

	// Re-importing a used id stores nothing.
	if _, err := ImportCustomersFromXLSX(db, mkXLSX([][]any{{"名称", "地址", "客户ID"}, {"王五", "三号楼", ""}, {"赵六", "四号楼", "1000100"}})); err == nil {
		t.Fatal("expected duplicate id error")
	}
	all, err := db.ListCustomers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("customers=%d", len(all))
	}
}

func TestExportDraftsToXLSX(t *testing.T) {
	s := newTestIntake(t, openTestDB(t))
	res, err := s.Parse(sampleOrder)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "preview")
	if err := ExportDraftsToXLSX(res, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out + ".xlsx")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(previewSheet)
	if err != nil {
		t.Fatal(err)
	}
	// header, two items for line 1, one for line 2, one failed line
	if len(rows) != 5 {
		t.Fatalf("rows=%d", len(rows))
	}
	if _, err := os.Stat(out + ".xlsx"); err != nil {
		t.Fatal(err)
	}
}
