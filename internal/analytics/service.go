package analytics

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/repository"
)

// Service computes spend rollups over a tenant's decoded records. All
// aggregation happens in Go so every stored document passes through the
// defensive decoder first.
type Service struct {
	repo   repository.InvoiceRepository
	logger *slog.Logger
}

// NewService creates the analytics service.
func NewService(repo repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// SpendByCategory attributes each invoice's full total to every category it
// carries. An invoice with two categories contributes its total twice, once
// per category; the sum across categories therefore exceeds the sum of
// invoice totals. That fan-out is intentional and load-bearing for the
// "where does my money go" view.
func (s *Service) SpendByCategory(ctx context.Context, tenantID string) ([]entity.CategorySpend, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	invs, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*entity.CategorySpend)
	for _, inv := range invs {
		for _, c := range inv.Categories {
			cs, ok := totals[c]
			if !ok {
				cs = &entity.CategorySpend{Category: c}
				totals[c] = cs
			}
			cs.Total += inv.Total
			cs.Count++
		}
	}

	out := make([]entity.CategorySpend, 0, len(totals))
	for _, cs := range totals {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// SpendByMonth groups invoices by the YYYY-MM prefix of their date and sums
// totals per group, oldest month first. Records whose date failed decoding
// are skipped and counted in a diagnostic.
func (s *Service) SpendByMonth(ctx context.Context, tenantID string) ([]entity.MonthlySpend, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	invs, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*entity.MonthlySpend)
	skipped := 0
	for _, inv := range invs {
		if len(inv.Date) < 7 {
			skipped++
			continue
		}
		month := inv.Date[:7]
		ms, ok := totals[month]
		if !ok {
			ms = &entity.MonthlySpend{Month: month}
			totals[month] = ms
		}
		ms.Total += inv.Total
		ms.Count++
	}
	if skipped > 0 {
		s.logger.Warn("analytics.month.skipped_undated", "tenant_id", tenantID, "count", skipped)
	}

	out := make([]entity.MonthlySpend, 0, len(totals))
	for _, ms := range totals {
		out = append(out, *ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// Overview combines both rollups. Total spend is the sum over monthly sums,
// so the category fan-out never double-counts here.
func (s *Service) Overview(ctx context.Context, tenantID string) (*entity.SpendOverview, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		byCategory []entity.CategorySpend
		byMonth    []entity.MonthlySpend
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byCategory, err = s.SpendByCategory(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		byMonth, err = s.SpendByMonth(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := &entity.SpendOverview{
		ByCategory:   byCategory,
		ByMonth:      byMonth,
		ActiveMonths: len(byMonth),
	}
	for _, m := range byMonth {
		ov.TotalSpend += m.Total
	}
	if ov.ActiveMonths > 0 {
		ov.AverageMonthlySpend = ov.TotalSpend / float64(ov.ActiveMonths)
		ov.FirstMonth = byMonth[0].Month
		ov.LastMonth = byMonth[len(byMonth)-1].Month
	}
	return ov, nil
}

func validateTenant(tenantID string) error {
	v := common.NewValidator().Field("tenant_id", tenantID, common.Required, common.TenantID)
	return common.ValidateAndReturnError(v)
}
