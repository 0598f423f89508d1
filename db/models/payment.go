package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransferWiseBulkPayment : a payment batch run. Payments are created
// for every unpaid invoice of the sender within the date window whose
// provider is eligible for TransferWise transfers.
type TransferWiseBulkPayment struct {
	ID        int64                  `json:"id" bun:",pk,autoincrement"`
	UUID      string                 `json:"uuid" bun:",notnull,unique"`
	Date      time.Time              `json:"date" bun:",notnull"`
	StartDate time.Time              `json:"start_date" bun:",notnull"`
	EndDate   time.Time              `json:"end_date" bun:",notnull"`
	SenderID  int64                  `json:"sender_id" bun:",notnull"`
	Sender    *Account               `json:"-" bun:"rel:belongs-to,join:sender_id=id"`
	CsvPath   string                 `json:"csv_path" bun:",nullzero"`
	Payments  []*TransferWisePayment `json:"-" bun:"rel:has-many,join:id=bulk_payment_id"`
	CreatedAt time.Time              `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

func (bp *TransferWiseBulkPayment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && bp.UUID == "" {
		bp.UUID = uuid.NewString()
	}
	return nil
}

// CsvFilename returns the export filename for this bulk payment.
func (bp *TransferWiseBulkPayment) CsvFilename(senderLogin string) string {
	return fmt.Sprintf("transferwise_bulk_payment_csv_%s_%s.csv", senderLogin, bp.Date.Format("2006-01-02"))
}

// TransferWisePayment : one payment of a single invoice, optionally part
// of a bulk payment. One-to-one with its invoice.
type TransferWisePayment struct {
	ID            int64                    `json:"id" bun:",pk,autoincrement"`
	UUID          string                   `json:"uuid" bun:",notnull,unique"`
	Date          time.Time                `json:"date" bun:",notnull"`
	BulkPaymentID int64                    `json:"bulk_payment_id" bun:",nullzero"`
	BulkPayment   *TransferWiseBulkPayment `json:"-" bun:"rel:belongs-to,join:bulk_payment_id=id"`
	InvoiceID     int64                    `json:"invoice_id" bun:",notnull,unique"`
	Invoice       *Invoice                 `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	CreatedAt     time.Time                `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

func (p *TransferWisePayment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && p.UUID == "" {
		p.UUID = uuid.NewString()
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*TransferWiseBulkPayment)(nil)
var _ bun.BeforeAppendModelHook = (*TransferWisePayment)(nil)
