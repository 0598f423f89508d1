package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem : one billable entry on an invoice. LineItemID is the
// external source id (a worklog id for synced items), not a database
// key; (invoice_id, line_item_id, key) is unique.
type LineItem struct {
	ID          int64           `json:"id" bun:",pk,autoincrement"`
	InvoiceID   int64           `json:"invoice_id" bun:",notnull"`
	Invoice     *Invoice        `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	LineItemID  int64           `json:"line_item_id" bun:",notnull"`
	Key         string          `json:"key" bun:",notnull"`
	Name        string          `json:"name" bun:",notnull"`
	Description string          `json:"description" bun:",nullzero"`
	Quantity    decimal.Decimal `json:"quantity" bun:"type:decimal(12,8),notnull"`
	Price       decimal.Decimal `json:"price" bun:"type:decimal(8,2),notnull"`
	Currency    string          `json:"currency" bun:",notnull"`
	Tag         string          `json:"tag" bun:",nullzero"`
	CreatedAt   time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

// Total is the cost of this line item: price x quantity.
func (li *LineItem) Total() decimal.Decimal {
	return li.Price.Mul(li.Quantity)
}

func (li *LineItem) String() string {
	return fmt.Sprintf("(%d) %s - %s (%s x %s = %s %s)",
		li.LineItemID, li.Key, li.Name, li.Quantity, li.Price, li.Total(), li.Currency)
}

// AggregatedLineItem : a group of line items sharing a key, with the
// quantity and total summed. Used for rendering and payment amounts so
// that each task appears as a single row.
type AggregatedLineItem struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// AggregateLineItems groups items by key, summing quantities and
// price x quantity totals. The result is ordered descending by key so
// output is deterministic. Name and price are taken from the last item
// seen for a key; keys are expected to carry a single name and price
// per invoice.
func AggregateLineItems(items []*LineItem) []AggregatedLineItem {
	grouped := map[string]*AggregatedLineItem{}
	for _, item := range items {
		agg, ok := grouped[item.Key]
		if !ok {
			agg = &AggregatedLineItem{Key: item.Key}
			grouped[item.Key] = agg
		}
		agg.Name = item.Name
		agg.Price = item.Price
		agg.Currency = item.Currency
		agg.Quantity = agg.Quantity.Add(item.Quantity)
		agg.Total = agg.Total.Add(item.Total())
	}

	result := make([]AggregatedLineItem, 0, len(grouped))
	for _, agg := range grouped {
		result = append(result, *agg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key > result[j].Key
	})
	return result
}

// TotalQuantity sums the quantities of aggregated line items.
func TotalQuantity(items []AggregatedLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity)
	}
	return total
}

// TotalCost sums the totals of aggregated line items.
func TotalCost(items []AggregatedLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}
