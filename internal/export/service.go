package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/repository"
)

// Service is a tiny façade over the repository that produces XLSX bytes for
// invoice exports.
type Service struct {
	repo   repository.InvoiceRepository
	logger *slog.Logger
}

// NewService creates the export service.
func NewService(repo repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) for the given tenant
// and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> every live invoice for the tenant.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, tenantID, from, to string) ([]byte, error) {
	start := time.Now()

	v := common.NewValidator().Field("tenant_id", tenantID, common.Required, common.TenantID)
	if from != "" {
		v.Field("from", from, common.Date)
	}
	if to != "" {
		v.Field("to", to, common.Date)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	var (
		invs []*entity.Invoice
		err  error
	)
	if from == "" && to == "" {
		invs, err = s.repo.ListByTenant(ctx, tenantID)
	} else {
		if from == "" {
			from = "0000-01-01"
		}
		if to == "" {
			to = time.Now().UTC().Format("2006-01-02")
		}
		invs, err = s.repo.ListByDateRange(ctx, tenantID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Vendor",
		"Categories",
		"Line Items",
		"Total",
		"Recurring",
		"Summary",
		"Source File",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, inv := range invs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, inv.Date)
		write(2, inv.Vendor)
		write(3, strings.Join(inv.Categories, ", "))
		write(4, truncate(formatLineItems(inv.LineItems), 200))
		write(5, inv.Total)
		write(6, formatRecurring(inv))
		write(7, truncate(inv.Summary, 140))
		write(8, inv.SourceFileURI)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "B", 26) // vendor
	_ = f.SetColWidth(sheet, "C", "C", 28) // categories
	_ = f.SetColWidth(sheet, "D", "D", 48) // line items
	_ = f.SetColWidth(sheet, "E", "F", 12) // total, recurring
	_ = f.SetColWidth(sheet, "G", "G", 60) // summary
	_ = f.SetColWidth(sheet, "H", "H", 48) // source file

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"tenant_id", tenantID,
		"rows", len(invs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatLineItems(items []entity.LineItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, li := range items {
		parts = append(parts, fmt.Sprintf("%s: %.2f", li.Description, li.Amount))
	}
	return strings.Join(parts, "; ")
}

func formatRecurring(inv *entity.Invoice) string {
	if inv.IsLikelyRecurring == nil {
		return ""
	}
	if *inv.IsLikelyRecurring {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
