package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// HourlyRate : the priced relationship from a provider to a client.
// At most one active rate may exist per (provider, client) pair; the
// partial unique index in the init migration enforces this.
type HourlyRate struct {
	ID         int64           `json:"id" bun:",pk,autoincrement"`
	ProviderID int64           `json:"provider_id" bun:",notnull"`
	Provider   *Account        `json:"-" bun:"rel:belongs-to,join:provider_id=id"`
	ClientID   int64           `json:"client_id" bun:",notnull"`
	Client     *Account        `json:"-" bun:"rel:belongs-to,join:client_id=id"`
	Rate       decimal.Decimal `json:"rate" bun:"type:decimal(8,2),notnull"`
	Currency   string          `json:"currency" bun:",notnull"`
	Active     bool            `json:"active" bun:",notnull,default:true"`
	CreatedAt  time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

func (r *HourlyRate) String() string {
	return fmt.Sprintf("provider %d charges client %d %s %s / hour", r.ProviderID, r.ClientID, r.Rate, r.Currency)
}
