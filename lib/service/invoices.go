package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
)

// firstDayOfMonth truncates t to midnight on the first of its month.
func firstDayOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// lastDayOfPastMonth returns the last day of the month that just passed.
func lastDayOfPastMonth(now time.Time) time.Time {
	return firstDayOfMonth(now).AddDate(0, 0, -1)
}

// firstDayOfPastMonth returns the first day of the month that just passed.
func firstDayOfPastMonth(now time.Time) time.Time {
	return firstDayOfMonth(lastDayOfPastMonth(now))
}

func (svc *BillinghubService) FindInvoiceByUUID(ctx context.Context, invoiceUUID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).Where("uuid = ?", invoiceUUID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// LatestInvoiceForPeriod returns the most recent invoice between the
// pair whose date falls in the month of `now`. Ties on date are broken
// by creation time, newest first, so the lookup is deterministic.
func (svc *BillinghubService) LatestInvoiceForPeriod(ctx context.Context, providerID, clientID int64, now time.Time) (*models.Invoice, error) {
	var invoice models.Invoice
	periodStart := firstDayOfMonth(now)
	err := svc.DB.NewSelect().Model(&invoice).
		Where("provider_id = ? AND client_id = ?", providerID, clientID).
		Where("date >= ? AND date < ?", periodStart, periodStart.AddDate(0, 1, 0)).
		Order("date DESC", "created_at DESC").
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// LatestInvoice returns the newest invoice between the pair regardless
// of period. Used to carry the invoice number forward.
func (svc *BillinghubService) LatestInvoice(ctx context.Context, providerID, clientID int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).
		Where("provider_id = ? AND client_id = ?", providerID, clientID).
		Order("date DESC", "created_at DESC").
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// CreateNextInvoice creates the invoice for the billing period that just
// ended, numbering it by incrementing the pair's previous invoice number
// under the provider's scheme, or by the scheme default if this is the
// first invoice between the pair.
func (svc *BillinghubService) CreateNextInvoice(ctx context.Context, tx bun.IDB, providerID, clientID int64, now time.Time) (*models.Invoice, error) {
	template, err := svc.InvoiceTemplateFor(ctx, providerID)
	if err != nil {
		return nil, err
	}
	scheme := NumberingScheme(template.NumberingScheme)

	var number string
	previous, err := svc.LatestInvoice(ctx, providerID, clientID)
	switch {
	case err == nil:
		number, err = IncrementNumber(scheme, previous.Number)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, ErrInvoiceNotFound):
		number, err = DefaultNumber(scheme, now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	invoice := &models.Invoice{
		Number:           number,
		Date:             now,
		BillingStartDate: firstDayOfPastMonth(now),
		BillingEndDate:   lastDayOfPastMonth(now),
		DueDate:          now.AddDate(0, 0, svc.Config.InvoiceDueDateDays),
		ProviderID:       providerID,
		ClientID:         clientID,
		Approved:         common.ApprovalNotApproved,
		Template:         template.Template,
		ExtraText:        template.ExtraText,
	}
	_, err = tx.NewInsert().Model(invoice).Exec(ctx)
	if err != nil {
		return nil, err
	}
	err = svc.logInvoiceChange(ctx, tx, invoice.ID, fmt.Sprintf("created with number %s", number))
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ApproveInvoice marks a not-yet-approved invoice as manually approved.
// A second approval attempt finds no matching row and reports
// ErrInvoiceNotFound; approval never overwrites an approved state.
func (svc *BillinghubService) ApproveInvoice(ctx context.Context, invoiceUUID string) (*models.Invoice, error) {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	var invoice models.Invoice
	err = tx.NewSelect().Model(&invoice).
		Where("uuid = ? AND approved = ?", invoiceUUID, common.ApprovalNotApproved).
		Limit(1).Scan(ctx)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	invoice.Approved = common.ApprovalManually
	_, err = tx.NewUpdate().Model(&invoice).WherePK().Exec(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = svc.logInvoiceChange(ctx, tx, invoice.ID, "approved manually")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	svc.publishInvoiceEvent(ctx, common.InvoiceEventApproved, &invoice)
	return &invoice, nil
}

// MarkInvoicePaid marks a single unpaid invoice as paid, outside of any
// bulk payment. Paying an already-paid invoice reports
// ErrInvoiceNotFound rather than re-applying the effect.
func (svc *BillinghubService) MarkInvoicePaid(ctx context.Context, invoiceUUID string) (*models.Invoice, error) {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	var invoice models.Invoice
	err = tx.NewSelect().Model(&invoice).
		Where("uuid = ? AND NOT paid", invoiceUUID).
		Limit(1).Scan(ctx)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	invoice.Paid = true
	_, err = tx.NewUpdate().Model(&invoice).WherePK().Exec(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = svc.logInvoiceChange(ctx, tx, invoice.ID, "marked paid")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	svc.publishInvoiceEvent(ctx, common.InvoiceEventPaid, &invoice)
	return &invoice, nil
}

// InvoiceLineItems loads the invoice's line items ordered by key.
func (svc *BillinghubService) InvoiceLineItems(ctx context.Context, invoiceID int64) ([]*models.LineItem, error) {
	items := []*models.LineItem{}
	err := svc.DB.NewSelect().Model(&items).
		Where("invoice_id = ?", invoiceID).
		Order("key ASC", "line_item_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// AggregateInvoice loads and aggregates the invoice's line items for
// rendering and payment amounts.
func (svc *BillinghubService) AggregateInvoice(ctx context.Context, invoice *models.Invoice) ([]models.AggregatedLineItem, error) {
	items, err := svc.InvoiceLineItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	return models.AggregateLineItems(items), nil
}

func (svc *BillinghubService) logInvoiceChange(ctx context.Context, tx bun.IDB, invoiceID int64, change string) error {
	entry := models.InvoiceChange{
		InvoiceID: invoiceID,
		ChangedAt: time.Now(),
		Change:    change,
	}
	_, err := tx.NewInsert().Model(&entry).Exec(ctx)
	return err
}
