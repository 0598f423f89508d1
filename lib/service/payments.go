package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/mailer"
)

var bulkPaymentCsvHeader = []string{
	"recipientId", "name", "account", "sourceCurrency", "targetCurrency",
	"amountCurrency", "amount", "paymentReference",
}

func (svc *BillinghubService) FindBulkPaymentByUUID(ctx context.Context, bulkPaymentUUID string) (*models.TransferWiseBulkPayment, error) {
	var bulkPayment models.TransferWiseBulkPayment
	err := svc.DB.NewSelect().Model(&bulkPayment).
		Relation("Sender").
		Where("transfer_wise_bulk_payment.uuid = ?", bulkPaymentUUID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBulkPaymentNotFound
		}
		return nil, err
	}
	return &bulkPayment, nil
}

// LoadBulkPaymentInvoices loads the batch's payments with their
// invoices and providers, as needed for the CSV export.
func (svc *BillinghubService) LoadBulkPaymentInvoices(ctx context.Context, bulkPayment *models.TransferWiseBulkPayment) error {
	payments := []*models.TransferWisePayment{}
	err := svc.DB.NewSelect().Model(&payments).
		Relation("Invoice").
		Relation("Invoice.Provider").
		Where("transfer_wise_payment.bulk_payment_id = ?", bulkPayment.ID).
		Order("transfer_wise_payment.id ASC").
		Scan(ctx)
	if err != nil {
		return err
	}
	bulkPayment.Payments = payments
	return nil
}

// ancientDate returns a date predating every invoice on record, used as
// the default batch window start so the batch also picks up unpaid
// backlog from earlier cycles.
func ancientDate(now time.Time) time.Time {
	return now.AddDate(1-now.Year(), 0, 0)
}

// CreateBulkPayment opens a new payment batch sent from the configured
// sender account. The window covers everything unpaid up to now; the
// invoices the current cycle just issued carry the creation date, so a
// window capped at the past month would miss them.
func (svc *BillinghubService) CreateBulkPayment(ctx context.Context, now time.Time) (*models.TransferWiseBulkPayment, error) {
	sender, err := svc.FindAccountByLogin(ctx, svc.Config.BulkPaymentSender)
	if err != nil {
		return nil, err
	}
	bulkPayment := &models.TransferWiseBulkPayment{
		Date:      now,
		StartDate: ancientDate(now),
		EndDate:   now,
		SenderID:  sender.ID,
		Sender:    sender,
	}
	_, err = svc.DB.NewInsert().Model(bulkPayment).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return bulkPayment, nil
}

// CreatePayments creates one payment per unpaid invoice billed to the
// batch sender within the batch window, skipping providers without a
// TransferWise-eligible bank account. Each invoice is paid in its own
// transaction, so one failure does not hold up the batch.
func (svc *BillinghubService) CreatePayments(ctx context.Context, bulkPayment *models.TransferWiseBulkPayment) ([]*models.TransferWisePayment, error) {
	invoices := []*models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).
		Distinct().
		Relation("Provider").
		Join("JOIN bank_accounts AS ba ON ba.account_id = invoice.provider_id").
		Where("invoice.client_id = ?", bulkPayment.SenderID).
		Where("invoice.paid = ?", false).
		Where("invoice.date >= ? AND invoice.date <= ?", bulkPayment.StartDate, bulkPayment.EndDate).
		Where("ba.transferwise_recipient_id IS NOT NULL").
		Order("invoice.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	payments := make([]*models.TransferWisePayment, 0, len(invoices))
	for _, invoice := range invoices {
		payment, err := svc.payInvoice(ctx, bulkPayment, invoice)
		if err != nil {
			svc.logPhaseFailure("bulk payment", invoice.UUID, err)
			continue
		}
		payments = append(payments, payment)
	}
	bulkPayment.Payments = payments
	return payments, nil
}

func (svc *BillinghubService) payInvoice(ctx context.Context, bulkPayment *models.TransferWiseBulkPayment, invoice *models.Invoice) (*models.TransferWisePayment, error) {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	payment := &models.TransferWisePayment{
		Date:          bulkPayment.Date,
		BulkPaymentID: bulkPayment.ID,
		InvoiceID:     invoice.ID,
		Invoice:       invoice,
	}
	_, err = tx.NewInsert().Model(payment).Exec(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.Paid = true
	_, err = tx.NewUpdate().Model(invoice).WherePK().Exec(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = svc.logInvoiceChange(ctx, tx, invoice.ID, fmt.Sprintf("marked paid by bulk payment %s", bulkPayment.UUID))
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	svc.publishInvoiceEvent(ctx, common.InvoiceEventPaid, invoice)
	return payment, nil
}

// WriteBulkPaymentCSV renders the batch in the TransferWise bulk
// transfer format. A batch without payments still produces the header
// row.
func (svc *BillinghubService) WriteBulkPaymentCSV(ctx context.Context, bulkPayment *models.TransferWiseBulkPayment) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(bulkPaymentCsvHeader); err != nil {
		return nil, err
	}

	for _, payment := range bulkPayment.Payments {
		invoice := payment.Invoice
		bankAccount, err := svc.EligibleBankAccount(ctx, invoice.ProviderID)
		if err != nil {
			return nil, err
		}
		if bankAccount == nil {
			return nil, fmt.Errorf("no eligible bank account for provider %d of invoice %s", invoice.ProviderID, invoice.UUID)
		}
		aggregated, err := svc.AggregateInvoice(ctx, invoice)
		if err != nil {
			return nil, err
		}
		currency := bankAccount.Currency
		if len(aggregated) > 0 {
			currency = aggregated[0].Currency
		}
		err = writer.Write([]string{
			strconv.FormatInt(bankAccount.TransferwiseRecipientID, 10),
			invoice.Provider.DisplayName(),
			bankAccount.AccountIdentifier(),
			currency,
			bankAccount.Currency,
			currency,
			models.TotalCost(aggregated).String(),
			invoice.Number,
		})
		if err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunBulkPaymentJob runs a full payment batch: create the batch, pay
// every eligible invoice, export the CSV, upload it and mail it to the
// billing address.
func (svc *BillinghubService) RunBulkPaymentJob(ctx context.Context, now time.Time) (*models.TransferWiseBulkPayment, error) {
	bulkPayment, err := svc.CreateBulkPayment(ctx, now)
	if err != nil {
		return nil, err
	}
	_, err = svc.CreatePayments(ctx, bulkPayment)
	if err != nil {
		return nil, err
	}
	content, err := svc.WriteBulkPaymentCSV(ctx, bulkPayment)
	if err != nil {
		return nil, err
	}

	filename := bulkPayment.CsvFilename(bulkPayment.Sender.Login)
	if svc.Uploader.Enabled() {
		reference, err := svc.Uploader.Upload(ctx, bytes.NewReader(content), []string{
			strconv.Itoa(bulkPayment.Date.Year()),
			"invoices-in",
			fmt.Sprintf("%d", int(bulkPayment.Date.Month())),
		}, filename)
		if err != nil {
			return nil, err
		}
		bulkPayment.CsvPath = reference
		_, err = svc.DB.NewUpdate().Model(bulkPayment).Column("csv_path").WherePK().Exec(ctx)
		if err != nil {
			return nil, err
		}
	}

	err = svc.Mailer.Send(ctx, mailer.Message{
		To:      []string{svc.Config.BillingEmail},
		Subject: fmt.Sprintf("TransferWise bulk payment for %s", bulkPayment.StartDate.Format("January 2006")),
		Body:    fmt.Sprintf("The bulk payment CSV for %s is attached. It contains %d payments.", bulkPayment.StartDate.Format("January 2006"), len(bulkPayment.Payments)),
		Attachment: &mailer.Attachment{
			Filename: filename,
			Content:  content,
		},
	})
	if err != nil {
		return nil, err
	}
	return bulkPayment, nil
}
