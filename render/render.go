package render

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftbill/billinghub.go/db/models"
)

// InvoiceData carries everything the invoice document shows.
type InvoiceData struct {
	Invoice       *models.Invoice
	Provider      *models.Account
	Client        *models.Account
	BankAccount   *models.BankAccount
	LineItems     []models.AggregatedLineItem
	TotalQuantity decimal.Decimal
	TotalCost     decimal.Decimal
	Currency      string
}

type Renderer interface {
	RenderInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
}
