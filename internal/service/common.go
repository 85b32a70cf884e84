package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

func sheetKey(id uint) string { return fmt.Sprintf("%s%d:detail", cache.SheetPrefix, id) }

func sheetPrefix(id uint) string { return fmt.Sprintf("%s%d:", cache.SheetPrefix, id) }

// invalidator drops cached views after writes. Cache failures are logged and
// never fail the write that triggered them.
type invalidator struct {
	cache cache.Cache
	log   *logger.Logger
}

func (i invalidator) sheets(ctx context.Context, ids ...uint) {
	for _, id := range ids {
		if err := i.cache.DeleteByPrefix(ctx, sheetPrefix(id)); err != nil {
			i.log.WarnContext(ctx, "cache invalidate failed", "sheet_id", id, "err", err)
		}
	}
	i.reports(ctx)
}

func (i invalidator) reports(ctx context.Context) {
	if err := i.cache.DeleteByPrefix(ctx, cache.ReportPrefix); err != nil {
		i.log.WarnContext(ctx, "cache invalidate failed", "prefix", cache.ReportPrefix, "err", err)
	}
}

// sheetIDsForOrders returns the sheets currently holding any of orderIDs.
func sheetIDsForOrders(ctx context.Context, repos *repository.Repositories, orderIDs ...uint) ([]uint, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	links, err := repos.DelegateSheetOrders.FindMany(ctx, repository.FindArgs[repository.DelegateSheetOrderFilter]{
		Where: repository.DelegateSheetOrderFilter{OrderIDs: orderIDs},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(links))
	ids := make([]uint, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.SheetID]; ok {
			continue
		}
		seen[l.SheetID] = struct{}{}
		ids = append(ids, l.SheetID)
	}
	return ids, nil
}

// detachFromSheets drops every join row of orderID and refreshes the totals of
// the sheets it sat on.
func detachFromSheets(ctx context.Context, repos *repository.Repositories, orderID uint, sheetIDs []uint) error {
	if _, err := repos.DelegateSheetOrders.DeleteMany(ctx, repository.DelegateSheetOrderFilter{OrderID: &orderID}); err != nil {
		return fmt.Errorf("unlink order %d: %w", orderID, err)
	}
	for _, id := range sheetIDs {
		if err := refreshSheetTotals(ctx, repos, id); err != nil {
			return fmt.Errorf("refresh sheet %d: %w", id, err)
		}
	}
	return nil
}

// refreshSheetTotals recomputes order_count and total_amount from the join rows.
func refreshSheetTotals(ctx context.Context, repos *repository.Repositories, sheetID uint) error {
	count, total, err := repos.DelegateSheetOrders.SheetTotals(ctx, sheetID)
	if err != nil {
		return err
	}
	_, err = repos.DelegateSheets.Update(ctx, sheetID, repository.DelegateSheetUpdate{
		OrderCount:  &count,
		TotalAmount: &total,
	})
	return err
}

// newBarcode builds a human-typeable code such as ORD-250131-9F2C41AB.
func newBarcode(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("060102"), suffix)
}

// normalizeBarcode trims and upper-cases a scanned barcode.
func normalizeBarcode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// uniqueBarcodes normalises, drops blanks and de-duplicates, keeping order.
func uniqueBarcodes(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		b := normalizeBarcode(raw)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
