package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"

	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/rabbitmq"
	"github.com/craftbill/billinghub.go/render"
	"github.com/craftbill/billinghub.go/storage"
	"github.com/craftbill/billinghub.go/worklog"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrBulkPaymentNotFound = errors.New("bulk payment not found")
	// Returned when pricing worklog line items and no active rate exists
	// between the invoice's provider and client. Fatal for that invoice:
	// we must not silently invoice at zero.
	ErrMissingHourlyRate = errors.New("no active hourly rate between provider and client")
)

type BillinghubService struct {
	Config         *Config
	DB             *bun.DB
	Logger         *lecho.Logger
	WorklogSource  worklog.Source
	Uploader       storage.Uploader
	Mailer         mailer.Mailer
	Renderer       render.Renderer
	RabbitMQClient rabbitmq.Client
}

func (svc *BillinghubService) FindAccountByLogin(ctx context.Context, login string) (*models.Account, error) {
	var account models.Account
	err := svc.DB.NewSelect().Model(&account).Where("login = ?", login).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ActiveHourlyRate returns the single active rate from provider to
// client, or ErrMissingHourlyRate if none exists.
func (svc *BillinghubService) ActiveHourlyRate(ctx context.Context, providerID, clientID int64) (*models.HourlyRate, error) {
	var rate models.HourlyRate
	err := svc.DB.NewSelect().Model(&rate).
		Where("provider_id = ? AND client_id = ? AND active", providerID, clientID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMissingHourlyRate
		}
		return nil, err
	}
	return &rate, nil
}

// ActiveProviderRates returns the active rates billing the given client,
// with providers loaded. These define the (client, provider) pairs of
// the billing cycle.
func (svc *BillinghubService) ActiveProviderRates(ctx context.Context, clientID int64) ([]*models.HourlyRate, error) {
	rates := []*models.HourlyRate{}
	err := svc.DB.NewSelect().Model(&rates).
		Relation("Provider").
		Where("client_id = ? AND active", clientID).
		Order("provider_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// EligibleBankAccount returns the provider's bank account carrying a
// TransferWise recipient id, or nil if the provider has none.
func (svc *BillinghubService) EligibleBankAccount(ctx context.Context, providerID int64) (*models.BankAccount, error) {
	var bankAccount models.BankAccount
	err := svc.DB.NewSelect().Model(&bankAccount).
		Where("account_id = ? AND transferwise_recipient_id IS NOT NULL", providerID).
		Order("created_at ASC").
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &bankAccount, nil
}

// InvoiceTemplateFor returns the provider's invoice template, or a
// default one if the provider never configured any.
func (svc *BillinghubService) InvoiceTemplateFor(ctx context.Context, providerID int64) (*models.InvoiceTemplate, error) {
	var template models.InvoiceTemplate
	err := svc.DB.NewSelect().Model(&template).Where("provider_id = ?", providerID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.InvoiceTemplate{
				ProviderID:      providerID,
				NumberingScheme: string(SchemeSequentialMonth),
				Template:        "default",
			}, nil
		}
		return nil, err
	}
	return &template, nil
}

func (svc *BillinghubService) publishInvoiceEvent(ctx context.Context, eventType string, invoice *models.Invoice) {
	if svc.RabbitMQClient == nil {
		return
	}
	err := svc.RabbitMQClient.PublishInvoiceEvent(ctx, rabbitmq.InvoiceEvent{
		Type:    eventType,
		Invoice: invoice,
	})
	if err != nil {
		svc.Logger.Errorf("Failed to publish invoice event %s for invoice %s: %v", eventType, invoice.UUID, err)
	}
}
