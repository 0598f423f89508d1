package models

import (
	"time"
)

// InvoiceTemplate : per-provider invoicing preferences. One per provider.
// The numbering scheme decides how invoice numbers are generated and
// rolled forward month to month.
type InvoiceTemplate struct {
	ID              int64     `json:"id" bun:",pk,autoincrement"`
	ProviderID      int64     `json:"provider_id" bun:",notnull,unique"`
	Provider        *Account  `json:"-" bun:"rel:belongs-to,join:provider_id=id"`
	NumberingScheme string    `json:"numbering_scheme" bun:",notnull,default:'sequential_month'"`
	Template        string    `json:"template" bun:",notnull,default:'default'"`
	ExtraText       string    `json:"extra_text" bun:",nullzero"`
	SignatureURL    string    `json:"signature_url" bun:",nullzero"`
	CreatedAt       time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}
