package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
)

// worklogTuple is the identity of a synced line item for reconciliation.
// Any field difference makes two tuples distinct, so a changed worklog
// is replaced wholesale rather than partially updated.
type worklogTuple struct {
	LineItemID  int64
	Key         string
	Name        string
	Description string
	Quantity    string
}

func tupleForLineItem(item *models.LineItem) worklogTuple {
	return worklogTuple{
		LineItemID:  item.LineItemID,
		Key:         item.Key,
		Name:        item.Name,
		Description: item.Description,
		Quantity:    item.Quantity.StringFixed(8),
	}
}

// ReconcileWorklogs syncs the invoice's worklog-tagged line items
// against the time tracker, idempotently. Re-running with unchanged
// data is a no-op; a stale or changed entry is deleted and recreated.
// If the worklog source is disabled or unreachable there is nothing to
// reconcile and the invoice is left untouched.
func (svc *BillinghubService) ReconcileWorklogs(ctx context.Context, tx bun.IDB, invoice *models.Invoice) error {
	if !svc.WorklogSource.Enabled() {
		return nil
	}

	provider := invoice.Provider
	if provider == nil {
		p, err := svc.findAccountByID(ctx, invoice.ProviderID)
		if err != nil {
			return err
		}
		provider = p
	}

	worklogs, err := svc.WorklogSource.Fetch(ctx, provider.Login, invoice.BillingStartDate, invoice.BillingEndDate)
	if err != nil {
		svc.Logger.Errorf("Failed to fetch worklogs for %s: %v", provider.Login, err)
		return nil
	}

	existing := []*models.LineItem{}
	err = tx.NewSelect().Model(&existing).
		Where("invoice_id = ? AND tag = ?", invoice.ID, common.WorklogTag).
		Scan(ctx)
	if err != nil {
		return err
	}

	current := map[worklogTuple]*models.LineItem{}
	for _, item := range existing {
		current[tupleForLineItem(item)] = item
	}
	incoming := map[worklogTuple]struct{}{}
	for _, w := range worklogs {
		incoming[worklogTuple{
			LineItemID:  w.ID,
			Key:         w.IssueKey,
			Name:        w.IssueTitle,
			Description: w.Description,
			Quantity:    w.TimeSpent().StringFixed(8),
		}] = struct{}{}
	}

	for tuple, item := range current {
		if _, ok := incoming[tuple]; ok {
			continue
		}
		_, err = tx.NewDelete().Model((*models.LineItem)(nil)).
			Where("invoice_id = ? AND line_item_id = ? AND key = ? AND tag = ?",
				invoice.ID, item.LineItemID, item.Key, common.WorklogTag).
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	var rate *models.HourlyRate
	for tuple := range incoming {
		if _, ok := current[tuple]; ok {
			continue
		}
		// Rate lookup is deferred until an item actually needs pricing,
		// and is fatal when missing: never invoice at zero.
		if rate == nil {
			rate, err = svc.ActiveHourlyRate(ctx, invoice.ProviderID, invoice.ClientID)
			if err != nil {
				return err
			}
		}
		item := models.LineItem{
			InvoiceID:   invoice.ID,
			LineItemID:  tuple.LineItemID,
			Key:         tuple.Key,
			Name:        tuple.Name,
			Description: tuple.Description,
			Quantity:    decimal.RequireFromString(tuple.Quantity),
			Price:       rate.Rate,
			Currency:    rate.Currency,
			Tag:         common.WorklogTag,
		}
		_, err = tx.NewInsert().Model(&item).Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (svc *BillinghubService) findAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	err := svc.DB.NewSelect().Model(&account).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
