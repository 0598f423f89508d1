package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/render"
)

const invoiceNotificationBody = `Hello,

At the beginning of each month, to help you gain time in invoicing your hours, I automatically build an invoice based on the worklogs you logged the month before.

I just wanted to let you know that I'll be doing this soon -- I'll send you an invoice for {{.Month}} to approve on {{.ApprovalDate}}.

Could you review your worklogs to ensure that they are accurate, before that date?

Thank you!
`

const invoiceApprovalBody = `Hello,

I have prepared your invoice for {{.Month}}! It is attached and ready for you to review.

When you've looked it over, can you approve it by clicking on this link, or by visiting it in your browser?

{{.ApprovalURL}}

If you find any issues with your invoice, please contact {{.BillingEmail}} before {{.FinalDate}} -- I will consider your invoice approved by then, and will proceed to sending the corresponding payment.
`

const invoiceFinalBody = `Hello,

I have attached your finalized and approved invoice for {{.Month}}.

We are now proceeding to send the bank transfers, and you can expect payment to arrive in your bank account within 5-8 business days at most.

If you have any issues, please contact {{.BillingEmail}}.
`

var (
	notificationTemplate = template.Must(template.New("notification").Parse(invoiceNotificationBody))
	approvalTemplate     = template.Must(template.New("approval").Parse(invoiceApprovalBody))
	finalTemplate        = template.Must(template.New("final").Parse(invoiceFinalBody))
)

// RunNotificationPhase sends one "prepare your invoice" notice per
// configured client, bcc'ing every provider with an active rate. No
// invoices are created in this phase.
func (svc *BillinghubService) RunNotificationPhase(ctx context.Context, now time.Time) error {
	month := lastDayOfPastMonth(now).Format("January")
	approvalDate := time.Date(now.Year(), now.Month(), svc.Config.InvoiceApprovalDay, 0, 0, 0, 0, now.Location())

	var body bytes.Buffer
	err := notificationTemplate.Execute(&body, map[string]string{
		"Month":        month,
		"ApprovalDate": approvalDate.Format("January 2"),
	})
	if err != nil {
		return err
	}

	for _, clientLogin := range svc.Config.BillingCycleClients {
		client, err := svc.FindAccountByLogin(ctx, clientLogin)
		if err != nil {
			svc.logPhaseFailure("notification", clientLogin, err)
			continue
		}
		rates, err := svc.ActiveProviderRates(ctx, client.ID)
		if err != nil {
			svc.logPhaseFailure("notification", clientLogin, err)
			continue
		}
		providerEmails := make([]string, 0, len(rates))
		for _, rate := range rates {
			providerEmails = append(providerEmails, rate.Provider.Email)
		}
		err = svc.Mailer.Send(ctx, mailer.Message{
			Cc:      []string{client.Email},
			Bcc:     providerEmails,
			Subject: fmt.Sprintf("Preparing your invoice for %s", month),
			Body:    body.String(),
		})
		if err != nil {
			svc.logPhaseFailure("notification", clientLogin, err)
		}
	}
	return nil
}

// RunApprovalPhase locates or creates the current-period invoice for
// every (client, provider) pair, reconciles its worklogs, renders and
// uploads the document, and emails the provider an approval link. A
// failing pair never aborts the rest of the phase.
func (svc *BillinghubService) RunApprovalPhase(ctx context.Context, now time.Time) error {
	for _, clientLogin := range svc.Config.BillingCycleClients {
		client, err := svc.FindAccountByLogin(ctx, clientLogin)
		if err != nil {
			svc.logPhaseFailure("approval", clientLogin, err)
			continue
		}
		rates, err := svc.ActiveProviderRates(ctx, client.ID)
		if err != nil {
			svc.logPhaseFailure("approval", clientLogin, err)
			continue
		}
		for _, rate := range rates {
			err = svc.prepareInvoiceForApproval(ctx, client, rate.Provider, now)
			if err != nil {
				svc.logPhaseFailure("approval", fmt.Sprintf("%s/%s", clientLogin, rate.Provider.Login), err)
			}
		}
	}
	return nil
}

func (svc *BillinghubService) prepareInvoiceForApproval(ctx context.Context, client, provider *models.Account, now time.Time) error {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	invoice, err := svc.LatestInvoiceForPeriod(ctx, provider.ID, client.ID, now)
	if err == ErrInvoiceNotFound {
		invoice, err = svc.CreateNextInvoice(ctx, tx, provider.ID, client.ID, now)
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	invoice.Provider = provider
	invoice.Client = client

	err = svc.ReconcileWorklogs(ctx, tx, invoice)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	svc.publishInvoiceEvent(ctx, common.InvoiceEventCreated, invoice)

	month := invoice.BillingStartDate.Format("January")
	finalDate := time.Date(now.Year(), now.Month(), svc.Config.InvoiceFinalDay, 0, 0, 0, 0, now.Location())

	var body bytes.Buffer
	err = approvalTemplate.Execute(&body, map[string]string{
		"Month":        month,
		"ApprovalURL":  fmt.Sprintf("%s/invoice/%s/approve", svc.Config.BaseSiteUrl, invoice.UUID),
		"BillingEmail": svc.Config.BillingEmail,
		"FinalDate":    finalDate.Format("January 2"),
	})
	if err != nil {
		return err
	}

	return svc.deliverInvoice(ctx, invoice, fmt.Sprintf("Approve your invoice for %s", month), body.String())
}

// RunFinalPhase auto-approves every current-period invoice still
// awaiting approval, then re-renders and sends every current-period
// invoice regardless of approval state. An already manually approved
// invoice is never demoted.
func (svc *BillinghubService) RunFinalPhase(ctx context.Context, now time.Time) error {
	periodStart := firstDayOfMonth(now)
	invoices := []*models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).
		Relation("Provider").
		Relation("Client").
		Where("invoice.date >= ? AND invoice.date < ?", periodStart, periodStart.AddDate(0, 1, 0)).
		Order("invoice.id ASC").
		Scan(ctx)
	if err != nil {
		return err
	}

	for _, invoice := range invoices {
		err = svc.finalizeInvoice(ctx, invoice, now)
		if err != nil {
			svc.logPhaseFailure("final", invoice.UUID, err)
		}
	}
	return nil
}

func (svc *BillinghubService) finalizeInvoice(ctx context.Context, invoice *models.Invoice, now time.Time) error {
	if invoice.Approved == common.ApprovalNotApproved {
		tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		// The guard lives in the WHERE clause: a manual approval landing
		// between the phase's initial load and this write must win.
		res, err := tx.NewUpdate().Model(invoice).
			Set("approved = ?", common.ApprovalAutomatically).
			Where("id = ? AND approved = ?", invoice.ID, common.ApprovalNotApproved).
			Exec(ctx)
		if err != nil {
			tx.Rollback()
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return err
		}
		if affected == 0 {
			tx.Rollback()
			err = svc.DB.NewSelect().Model(invoice).WherePK().Scan(ctx)
			if err != nil {
				return err
			}
		} else {
			invoice.Approved = common.ApprovalAutomatically
			err = svc.logInvoiceChange(ctx, tx, invoice.ID, "approved automatically")
			if err != nil {
				tx.Rollback()
				return err
			}
			if err = tx.Commit(); err != nil {
				return err
			}
		}
	}
	svc.publishInvoiceEvent(ctx, common.InvoiceEventFinalized, invoice)

	month := invoice.BillingStartDate.Format("January")
	var body bytes.Buffer
	err := finalTemplate.Execute(&body, map[string]string{
		"Month":        month,
		"BillingEmail": svc.Config.BillingEmail,
	})
	if err != nil {
		return err
	}
	return svc.deliverInvoice(ctx, invoice, fmt.Sprintf("Your approved invoice for %s", month), body.String())
}

// deliverInvoice renders the invoice document, uploads it to remote
// storage and emails it to the provider, recording the uploaded
// document reference on the invoice.
func (svc *BillinghubService) deliverInvoice(ctx context.Context, invoice *models.Invoice, subject, body string) error {
	aggregated, err := svc.AggregateInvoice(ctx, invoice)
	if err != nil {
		return err
	}
	bankAccount, err := svc.EligibleBankAccount(ctx, invoice.ProviderID)
	if err != nil {
		return err
	}

	currency := ""
	if rate, err := svc.ActiveHourlyRate(ctx, invoice.ProviderID, invoice.ClientID); err == nil {
		currency = rate.Currency
	}

	document, err := svc.Renderer.RenderInvoice(ctx, render.InvoiceData{
		Invoice:       invoice,
		Provider:      invoice.Provider,
		Client:        invoice.Client,
		BankAccount:   bankAccount,
		LineItems:     aggregated,
		TotalQuantity: models.TotalQuantity(aggregated),
		TotalCost:     models.TotalCost(aggregated),
		Currency:      currency,
	})
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("invoice_%s_%s_%s.html",
		invoice.Provider.Login, invoice.Client.Login, invoice.Date.Format("2006-01-02"))

	if svc.Uploader.Enabled() {
		reference, err := svc.Uploader.Upload(ctx, bytes.NewReader(document), []string{
			strconv.Itoa(invoice.BillingStartDate.Year()),
			"invoices-in",
			fmt.Sprintf("%d", int(invoice.BillingStartDate.Month())),
		}, filename)
		if err != nil {
			return err
		}
		tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		invoice.PdfPath = reference
		_, err = tx.NewUpdate().Model(invoice).Column("pdf_path").WherePK().Exec(ctx)
		if err != nil {
			tx.Rollback()
			return err
		}
		err = svc.logInvoiceChange(ctx, tx, invoice.ID, fmt.Sprintf("document uploaded to %s", reference))
		if err != nil {
			tx.Rollback()
			return err
		}
		if err = tx.Commit(); err != nil {
			return err
		}
	}

	return svc.Mailer.Send(ctx, mailer.Message{
		To:      []string{invoice.Provider.Email},
		Cc:      []string{invoice.Client.Email},
		Subject: subject,
		Body:    body,
		Attachment: &mailer.Attachment{
			Filename: filename,
			Content:  document,
		},
	})
}

func (svc *BillinghubService) logPhaseFailure(phase, subject string, err error) {
	sentry.CaptureException(err)
	svc.Logger.Errorf("Billing cycle %s phase failed for %s: %v", phase, subject, err)
}
