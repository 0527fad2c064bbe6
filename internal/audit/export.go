package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/repository/postgresql"
)

type Lister interface {
	List(ctx context.Context, f postgresql.AuditFilter) ([]entity.AuditLog, error)
}

// MaxExportRows caps a single export.
const MaxExportRows = 50_000

// ExportXLSX renders the entries matching f as a single-sheet workbook.
func ExportXLSX(ctx context.Context, src Lister, f postgresql.AuditFilter) ([]byte, int, error) {
	if f.Limit <= 0 || f.Limit > MaxExportRows {
		f.Limit = MaxExportRows
	}
	logs, err := src.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit logs: %w", err)
	}

	x := excelize.NewFile()
	defer func() { _ = x.Close() }()

	const sheet = "AuditLog"
	if _, err := x.NewSheet(sheet); err != nil {
		return nil, 0, err
	}
	idx, _ := x.GetSheetIndex(sheet)
	x.SetActiveSheet(idx)
	_ = x.DeleteSheet("Sheet1")

	headers := []string{"Timestamp", "Action", "Resource Type", "Resource ID", "Status", "User IP", "User ID", "Error", "Details"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(sheet, cell, h)
	}

	for n, e := range logs {
		row := n + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = x.SetCellValue(sheet, cell, v)
		}
		write(1, e.Timestamp.UTC().Format(time.RFC3339))
		write(2, e.ActionType)
		write(3, e.ResourceType)
		write(4, deref(e.ResourceID))
		write(5, string(e.Status))
		write(6, e.UserIP)
		write(7, deref(e.UserID))
		write(8, deref(e.ErrorMessage))
		write(9, string(e.Details))
	}

	_ = x.SetColWidth(sheet, "A", "A", 22)
	_ = x.SetColWidth(sheet, "B", "C", 24)
	_ = x.SetColWidth(sheet, "D", "D", 38)
	_ = x.SetColWidth(sheet, "I", "I", 80)

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), len(logs), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
