package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account : a billable party. Whether it acts as provider or client is
// determined per relationship (HourlyRate, Invoice).
type Account struct {
	ID           int64     `json:"id" bun:",pk,autoincrement"`
	UUID         string    `json:"uuid" bun:",notnull,unique"`
	Login        string    `json:"login" bun:",notnull,unique" validate:"required"`
	Email        string    `json:"email" bun:",notnull" validate:"required,email"`
	BusinessName string    `json:"business_name" bun:",nullzero"`
	CreatedAt    time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

func (a *Account) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return nil
}

// DisplayName returns the business name if set, the login otherwise.
func (a *Account) DisplayName() string {
	if a.BusinessName != "" {
		return a.BusinessName
	}
	return a.Login
}

// BankAccount : bank details for an account. Identifier fields are all
// optional since they differ per country; the recipient id marks the
// account as eligible for TransferWise bulk payments.
type BankAccount struct {
	ID                      int64     `json:"id" bun:",pk,autoincrement"`
	UUID                    string    `json:"uuid" bun:",notnull,unique"`
	AccountID               int64     `json:"account_id" bun:",notnull"`
	Account                 *Account  `json:"-" bun:"rel:belongs-to,join:account_id=id"`
	BankName                string    `json:"bank_name" bun:",nullzero"`
	Currency                string    `json:"currency" bun:",notnull"`
	IBAN                    string    `json:"iban" bun:",nullzero"`
	BIC                     string    `json:"bic" bun:",nullzero"`
	AccountNumber           string    `json:"account_number" bun:",nullzero"`
	RoutingNumber           string    `json:"routing_number" bun:",nullzero"`
	TransferwiseRecipientID int64     `json:"transferwise_recipient_id" bun:",nullzero"`
	CreatedAt               time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

func (b *BankAccount) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	return nil
}

// AccountIdentifier returns the IBAN when present, falling back to the
// local account number.
func (b *BankAccount) AccountIdentifier() string {
	if b.IBAN != "" {
		return b.IBAN
	}
	return b.AccountNumber
}

var _ bun.BeforeAppendModelHook = (*Account)(nil)
var _ bun.BeforeAppendModelHook = (*BankAccount)(nil)
