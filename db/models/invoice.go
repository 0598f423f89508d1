package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/craftbill/billinghub.go/common"
)

// Invoice : Invoice Model. The central aggregate of the billing cycle.
// Invoices are never hard-deleted; every mutation writes an InvoiceChange
// row in the same transaction.
type Invoice struct {
	ID               int64        `json:"id" bun:",pk,autoincrement"`
	UUID             string       `json:"uuid" bun:",notnull,unique"`
	Number           string       `json:"number" bun:",notnull" validate:"required"`
	Date             time.Time    `json:"date" bun:",notnull"`
	BillingStartDate time.Time    `json:"billing_start_date" bun:",notnull"`
	BillingEndDate   time.Time    `json:"billing_end_date" bun:",notnull"`
	DueDate          time.Time    `json:"due_date" bun:",notnull"`
	ProviderID       int64        `json:"provider_id" bun:",notnull"`
	Provider         *Account     `json:"-" bun:"rel:belongs-to,join:provider_id=id"`
	ClientID         int64        `json:"client_id" bun:",notnull"`
	Client           *Account     `json:"-" bun:"rel:belongs-to,join:client_id=id"`
	Paid             bool         `json:"paid" bun:",notnull,default:false"`
	Approved         string       `json:"approved" bun:",notnull,default:'not_approved'"`
	Template         string       `json:"template" bun:",notnull,default:'default'"`
	ExtraText        string       `json:"extra_text" bun:",nullzero"`
	PdfPath          string       `json:"pdf_path" bun:",nullzero"`
	LineItems        []*LineItem  `json:"-" bun:"rel:has-many,join:id=invoice_id"`
	CreatedAt        time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt        bun.NullTime `json:"updated_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if i.UUID == "" {
			i.UUID = uuid.NewString()
		}
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

// IsApproved reports whether the invoice was approved, manually or
// automatically.
func (i *Invoice) IsApproved() bool {
	return i.Approved == common.ApprovalManually || i.Approved == common.ApprovalAutomatically
}

func (i *Invoice) String() string {
	state := "PENDING"
	if i.Paid {
		state = "PAID"
	}
	return fmt.Sprintf("%s: provider %d invoicing client %d (%s)", i.Date.Format("2006-01-02"), i.ProviderID, i.ClientID, state)
}

// InvoiceChange : append-only audit trail for invoices, keyed by invoice
// id and revision timestamp. Written transactionally alongside each
// invoice mutation.
type InvoiceChange struct {
	ID        int64     `json:"id" bun:",pk,autoincrement"`
	InvoiceID int64     `json:"invoice_id" bun:",notnull"`
	Invoice   *Invoice  `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	ChangedAt time.Time `json:"changed_at" bun:",notnull"`
	Change    string    `json:"change" bun:",notnull"`
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
