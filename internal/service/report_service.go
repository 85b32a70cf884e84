package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/utils"
)

const (
	defaultReportDays = 30
	maxReportWindow   = 366 * 24 * time.Hour
)

type ReportService struct {
	repos    *repository.Repositories
	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewReportService(repos *repository.Repositories, c cache.Cache, cacheTTL time.Duration, log *logger.Logger) *ReportService {
	return &ReportService{
		repos:    repos,
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log.With("service", "report"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type StatusTotal struct {
	Status model.OrderStatus `json:"status"`
	Orders int64             `json:"orders"`
	Amount decimal.Decimal   `json:"amount"`
}

type DriverTotal struct {
	DriverID   uint            `json:"driver_id"`
	DriverName string          `json:"driver_name"`
	Orders     int64           `json:"orders"`
	Collected  decimal.Decimal `json:"collected"`
}

type SheetTotals struct {
	Sheets      int64           `json:"sheets"`
	Orders      int64           `json:"orders"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Summary covers orders and sheets created inside Window.
type Summary struct {
	Window            utils.TimeRange `json:"window"`
	OrdersByStatus    []StatusTotal   `json:"orders_by_status"`
	CollectedByDriver []DriverTotal   `json:"collected_by_driver"`
	Sheets            SheetTotals     `json:"sheets"`
}

// Summary aggregates activity between from and to. Zero bounds default to
// the last 30 days; windows are capped at one year.
func (s *ReportService) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	window, err := utils.NormalizeTimeRange(from, to, s.now(), defaultReportDays, time.UTC, maxReportWindow)
	if err != nil {
		return nil, validationf("report window: %v", err)
	}
	// Widen to whole minutes so "now"-based windows share a cache key.
	window.Start = window.Start.Truncate(time.Minute)
	if end := window.End.Truncate(time.Minute); !end.Equal(window.End) {
		window.End = end.Add(time.Minute)
	}

	key := cache.ReportPrefix + "summary:" +
		strconv.FormatInt(window.Start.Unix(), 10) + ":" + strconv.FormatInt(window.End.Unix(), 10)
	var cached Summary
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, nil
	case !errors.Is(err, cache.ErrMiss):
		s.log.WarnContext(ctx, "cache read failed", "key", key, "err", err)
	}

	summary, err := s.build(ctx, window)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
		s.log.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
	return summary, nil
}

func (s *ReportService) build(ctx context.Context, window utils.TimeRange) (*Summary, error) {
	inWindow := repository.OrderFilter{CreatedFrom: &window.Start, CreatedTo: &window.End}
	sumCOD := repository.AggregateArgs{Sum: []string{"cod_amount"}}

	byStatus, err := s.repos.Orders.GroupBy(ctx, inWindow, repository.GroupByArgs{By: []string{"status"}, AggregateArgs: sumCOD})
	if err != nil {
		return nil, fmt.Errorf("orders by status: %w", err)
	}
	summary := &Summary{
		Window:            window,
		OrdersByStatus:    make([]StatusTotal, 0, len(byStatus)),
		CollectedByDriver: []DriverTotal{},
	}
	for _, g := range byStatus {
		summary.OrdersByStatus = append(summary.OrdersByStatus, StatusTotal{
			Status: model.OrderStatus(deref(g.Keys["status"])),
			Orders: g.Count,
			Amount: sumOrZero(g.Sum["cod_amount"]),
		})
	}

	delivered := inWindow
	delivered.Statuses = []model.OrderStatus{model.OrderStatusDelivered}
	byDriver, err := s.repos.Orders.GroupBy(ctx, delivered, repository.GroupByArgs{By: []string{"driver_id"}, AggregateArgs: sumCOD})
	if err != nil {
		return nil, fmt.Errorf("collected by driver: %w", err)
	}
	var driverIDs []uint
	for _, g := range byDriver {
		raw := g.Keys["driver_id"]
		if raw == nil {
			continue
		}
		id, err := strconv.ParseUint(*raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("driver id %q: %w", *raw, err)
		}
		driverIDs = append(driverIDs, uint(id))
		summary.CollectedByDriver = append(summary.CollectedByDriver, DriverTotal{
			DriverID:  uint(id),
			Orders:    g.Count,
			Collected: sumOrZero(g.Sum["cod_amount"]),
		})
	}
	if len(driverIDs) > 0 {
		drivers, err := s.repos.Drivers.FindMany(ctx, repository.FindArgs[repository.DriverFilter]{
			Where: repository.DriverFilter{IDs: driverIDs},
		})
		if err != nil {
			return nil, err
		}
		names := make(map[uint]string, len(drivers))
		for _, d := range drivers {
			names[d.ID] = d.Name
		}
		for i := range summary.CollectedByDriver {
			summary.CollectedByDriver[i].DriverName = names[summary.CollectedByDriver[i].DriverID]
		}
	}

	sheets, err := s.repos.DelegateSheets.Aggregate(ctx,
		repository.DelegateSheetFilter{CreatedFrom: &window.Start, CreatedTo: &window.End},
		repository.AggregateArgs{Sum: []string{"total_amount", "order_count"}},
	)
	if err != nil {
		return nil, fmt.Errorf("sheet totals: %w", err)
	}
	summary.Sheets = SheetTotals{
		Sheets:      sheets.Count,
		Orders:      sumOrZero(sheets.Sum["order_count"]).IntPart(),
		TotalAmount: sumOrZero(sheets.Sum["total_amount"]),
	}
	return summary, nil
}

func sumOrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal.Round(2)
}
