package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"orderdesk/internal"
	"orderdesk/internal/parser"
)

const (
	customersSheet = "客户列表"
	ordersSheet    = "订单列表"
	previewSheet   = "解析预览"
)

var customerHeaders = []string{"客户ID", "名称", "昵称", "地址", "备注"}

// OrdersWorkbook lays out one row per stored order.
func OrdersWorkbook(rows []internal.OrderExportRow) (*excelize.File, error) {
	f, sheet, err := newWorkbook(ordersSheet)
	if err != nil {
		return nil, err
	}

	headers := []string{"订单ID", "客户ID", "客户名称", "客户地址", "产品", "数量", "单价", "总价", "送货日期", "备注"}
	writeRow(f, sheet, 1, toAny(headers))

	for i, row := range rows {
		writeRow(f, sheet, i+2, []any{
			row.ID,
			fmt.Sprintf("%07d", row.CustomerID),
			row.CustomerName,
			row.CustomerAddress,
			row.ProductName,
			row.Quantity,
			derefFloat(row.UnitPrice),
			derefFloat(row.TotalPrice),
			row.DeliveryDate,
			row.Remarks,
		})
	}
	return f, nil
}

func ExportOrdersToXLSX(rows []internal.OrderExportRow, outputPath string) error {
	f, err := OrdersWorkbook(rows)
	if err != nil {
		return err
	}
	return saveWorkbook(f, outputPath)
}

// CustomersWorkbook uses the same columns ImportCustomersFromXLSX reads, so
// an export can be edited and imported again.
func CustomersWorkbook(customers []internal.Customer) (*excelize.File, error) {
	f, sheet, err := newWorkbook(customersSheet)
	if err != nil {
		return nil, err
	}
	writeRow(f, sheet, 1, toAny(customerHeaders))

	for i, c := range customers {
		nickname := ""
		if c.Nickname != nil {
			nickname = *c.Nickname
		}
		writeRow(f, sheet, i+2, []any{fmt.Sprintf("%07d", c.ID), c.Name, nickname, c.Address, c.Remarks})
	}

	for i, width := range []float64{10, 20, 15, 30, 30} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func ExportCustomersToXLSX(customers []internal.Customer, outputPath string) error {
	f, err := CustomersWorkbook(customers)
	if err != nil {
		return err
	}
	return saveWorkbook(f, outputPath)
}

// DraftsWorkbook previews a parse without storing anything. Failed lines
// get a row with the error in the last column.
func DraftsWorkbook(res parser.Result) (*excelize.File, error) {
	f, sheet, err := newWorkbook(previewSheet)
	if err != nil {
		return nil, err
	}
	writeRow(f, sheet, 1, []any{"行号", "客户", "产品", "数量", "单价", "总价", "备注", "错误"})

	r := 2
	for _, line := range res.Lines {
		if !line.OK() {
			writeRow(f, sheet, r, []any{line.Number, "", "", "", "", "", "", line.Err.Error()})
			r++
			continue
		}
		for _, item := range line.Draft.Items {
			row := []any{line.Number, line.Draft.CustomerName, item.ProductName, item.Quantity.InexactFloat64(), "", "", line.Draft.Remark, ""}
			if item.Priced() {
				row[4] = item.UnitPrice.InexactFloat64()
				row[5] = item.TotalPrice.InexactFloat64()
			} else {
				row[7] = "未找到价格"
			}
			writeRow(f, sheet, r, row)
			r++
		}
	}
	return f, nil
}

func ExportDraftsToXLSX(res parser.Result, outputPath string) error {
	f, err := DraftsWorkbook(res)
	if err != nil {
		return err
	}
	return saveWorkbook(f, outputPath)
}

func newWorkbook(sheet string) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, "", err
	}
	return f, sheet, nil
}

func writeRow(f *excelize.File, sheet string, r int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, r)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func saveWorkbook(f *excelize.File, outputPath string) error {
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath += ".xlsx"
	}
	return f.SaveAs(outputPath)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
