package pipeline

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"orderdesk/internal/config"
	"orderdesk/internal/storage"
)

const sampleOrder = "面包 10元\n小青柑 20元\n订单信息\n1. 张三 面包2+青柑1(急件)\n2. 李四 豆腐半\n3. \n"

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestIntake(t *testing.T, db *storage.DB) *IntakeService {
	t.Helper()
	s := NewIntakeService(db, config.Config{IntakeDefaultDeliveryDays: 1}, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return s
}
