package integration_tests

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun/migrate"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db"
	"github.com/craftbill/billinghub.go/db/migrations"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/logging"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/render"
	"github.com/craftbill/billinghub.go/worklog"
)

// MockWorklogSource serves a fixed set of worklogs per provider login.
type MockWorklogSource struct {
	Worklogs map[string][]worklog.Worklog
	Err      error
	Disabled bool
}

func (s *MockWorklogSource) Enabled() bool { return !s.Disabled }

func (s *MockWorklogSource) Fetch(ctx context.Context, username string, from, to time.Time) ([]worklog.Worklog, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Worklogs[username], nil
}

// RecordingMailer collects outgoing messages instead of delivering them.
// An optional OnSend callback runs before each message is recorded, which
// lets a test interleave other service calls with a delivery in flight.
type RecordingMailer struct {
	mu       sync.Mutex
	Messages []mailer.Message
	OnSend   func(message mailer.Message)
}

func (m *RecordingMailer) Send(ctx context.Context, message mailer.Message) error {
	if m.OnSend != nil {
		m.OnSend(message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, message)
	return nil
}

func (m *RecordingMailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message{}, m.Messages...)
}

// RecordingUploader stores uploads in memory, keyed by the joined path.
type RecordingUploader struct {
	mu      sync.Mutex
	Uploads map[string][]byte
}

func (u *RecordingUploader) Enabled() bool { return true }

func (u *RecordingUploader) Upload(ctx context.Context, content io.Reader, folders []string, filename string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Uploads == nil {
		u.Uploads = map[string][]byte{}
	}
	path := ""
	for _, folder := range folders {
		path += folder + "/"
	}
	path += filename
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	u.Uploads[path] = data
	return "memory://" + path, nil
}

func BillinghubTestServiceInit(worklogSource worklog.Source) (svc *service.BillinghubService, testMailer *RecordingMailer, err error) {
	c := &service.Config{
		DatabaseUri:             "sqlite://file::memory:?cache=shared",
		DatabaseMaxConns:        1,
		DatabaseMaxIdleConns:    1,
		DatabaseConnMaxLifetime: 10,
		DefaultRateLimit:        100,
		BillingEmail:            "billing@craftbill.test",
		BaseSiteUrl:             "https://billing.craftbill.test",
		InvoiceNotificationDay:  1,
		InvoiceApprovalDay:      3,
		InvoiceFinalDay:         5,
		InvoiceDueDateDays:      20,
		BulkPaymentDay:          7,
	}

	dbConn, err := db.Open(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	_, err = migrator.Migrate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to migrate: %w", err)
	}

	logger := logging.Logger(c.LogFilePath)
	testMailer = &RecordingMailer{}
	svc = &service.BillinghubService{
		Config:        c,
		DB:            dbConn,
		Logger:        logger,
		WorklogSource: worklogSource,
		Uploader:      &RecordingUploader{},
		Mailer:        testMailer,
		Renderer:      render.NewHTMLRenderer(),
	}
	return svc, testMailer, nil
}

func clearTables(svc *service.BillinghubService, tableNames ...string) error {
	for _, tableName := range tableNames {
		_, err := svc.DB.Exec(fmt.Sprintf("DELETE FROM %s", tableName))
		if err != nil {
			return err
		}
	}
	return nil
}

func createAccount(svc *service.BillinghubService, login, email, businessName string) (*models.Account, error) {
	account := &models.Account{Login: login, Email: email, BusinessName: businessName}
	_, err := svc.DB.NewInsert().Model(account).Exec(context.Background())
	return account, err
}

func createRate(svc *service.BillinghubService, providerID, clientID int64, rate string, currency string) (*models.HourlyRate, error) {
	hourlyRate := &models.HourlyRate{
		ProviderID: providerID,
		ClientID:   clientID,
		Rate:       decimal.RequireFromString(rate),
		Currency:   currency,
		Active:     true,
	}
	_, err := svc.DB.NewInsert().Model(hourlyRate).Exec(context.Background())
	return hourlyRate, err
}

func createBankAccount(svc *service.BillinghubService, accountID int64, currency string, recipientID int64) (*models.BankAccount, error) {
	bankAccount := &models.BankAccount{
		AccountID:               accountID,
		BankName:                "Test Bank",
		Currency:                currency,
		IBAN:                    fmt.Sprintf("DE0000%d", accountID),
		BIC:                     "TESTBICX",
		TransferwiseRecipientID: recipientID,
	}
	_, err := svc.DB.NewInsert().Model(bankAccount).Exec(context.Background())
	return bankAccount, err
}

func createInvoice(svc *service.BillinghubService, providerID, clientID int64, number string, date time.Time) (*models.Invoice, error) {
	invoice := &models.Invoice{
		Number:           number,
		Date:             date,
		BillingStartDate: date.AddDate(0, -1, 0),
		BillingEndDate:   date.AddDate(0, 0, -1),
		DueDate:          date.AddDate(0, 0, 20),
		ProviderID:       providerID,
		ClientID:         clientID,
		Approved:         common.ApprovalNotApproved,
	}
	_, err := svc.DB.NewInsert().Model(invoice).Exec(context.Background())
	return invoice, err
}

type TestSuite struct {
	suite.Suite
	echo *echo.Echo
}
