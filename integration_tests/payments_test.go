package integration_tests

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/worklog"
)

type BulkPaymentTestSuite struct {
	TestSuite
	svc    *service.BillinghubService
	mailer *RecordingMailer
	source *MockWorklogSource
	alice  *models.Account
	bob    *models.Account
	client *models.Account
}

func (suite *BulkPaymentTestSuite) SetupSuite() {
	suite.source = &MockWorklogSource{Worklogs: map[string][]worklog.Worklog{}}
	svc, testMailer, err := BillinghubTestServiceInit(suite.source)
	if err != nil {
		suite.T().Fatalf("Error initializing test service: %v", err)
	}
	suite.svc = svc
	suite.mailer = testMailer
}

func (suite *BulkPaymentTestSuite) SetupTest() {
	err := clearTables(suite.svc, "transfer_wise_payments", "transfer_wise_bulk_payments",
		"line_items", "invoice_changes", "invoices", "hourly_rates", "bank_accounts", "accounts")
	assert.NoError(suite.T(), err)
	suite.mailer.Messages = nil
	suite.mailer.OnSend = nil
	suite.source.Worklogs = map[string][]worklog.Worklog{}

	alice, err := createAccount(suite.svc, "alice", "alice@provider.test", "")
	assert.NoError(suite.T(), err)
	bob, err := createAccount(suite.svc, "bob", "bob@provider.test", "Bob Consulting")
	assert.NoError(suite.T(), err)
	client, err := createAccount(suite.svc, "megacorp", "billing@megacorp.test", "MegaCorp Inc")
	assert.NoError(suite.T(), err)

	// alice can receive TransferWise payments, bob cannot
	_, err = createBankAccount(suite.svc, alice.ID, "EUR", 4242)
	assert.NoError(suite.T(), err)
	bobAccount := &models.BankAccount{AccountID: bob.ID, Currency: "USD", AccountNumber: "123456"}
	_, err = suite.svc.DB.NewInsert().Model(bobAccount).Exec(context.Background())
	assert.NoError(suite.T(), err)

	suite.svc.Config.BulkPaymentSender = "megacorp"
	suite.alice = alice
	suite.bob = bob
	suite.client = client
}

func (suite *BulkPaymentTestSuite) addLineItem(invoice *models.Invoice, key string, quantity, price string) {
	item := &models.LineItem{
		InvoiceID:  invoice.ID,
		LineItemID: invoice.ID*100 + int64(len(key)),
		Key:        key,
		Name:       "Work on " + key,
		Quantity:   decimal.RequireFromString(quantity),
		Price:      decimal.RequireFromString(price),
		Currency:   "EUR",
		Tag:        common.WorklogTag,
	}
	_, err := suite.svc.DB.NewInsert().Model(item).Exec(context.Background())
	assert.NoError(suite.T(), err)
}

func (suite *BulkPaymentTestSuite) TestPaysOnlyEligibleUnpaidInvoicesInRange() {
	ctx := context.Background()
	current := time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC)

	// eligible: unpaid, provider has a TransferWise recipient
	eligible, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2018-01", current)
	assert.NoError(suite.T(), err)
	suite.addLineItem(eligible, "OC-1", "2", "50")

	// already paid
	paid, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2017-12", current)
	assert.NoError(suite.T(), err)
	paid.Paid = true
	_, err = suite.svc.DB.NewUpdate().Model(paid).WherePK().Exec(ctx)
	assert.NoError(suite.T(), err)

	// unpaid backlog from an earlier cycle is still eligible
	backlog, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2017-11",
		time.Date(2017, 11, 15, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)

	// dated after the batch window closes
	_, err = createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2018-02",
		time.Date(2018, 2, 10, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)

	// provider not set up for TransferWise
	_, err = createInvoice(suite.svc, suite.bob.ID, suite.client.ID, "B-2018-01", current)
	assert.NoError(suite.T(), err)

	bulkPayment, err := suite.svc.CreateBulkPayment(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	payments, err := suite.svc.CreatePayments(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	assert.Len(suite.T(), payments, 2)
	assert.Equal(suite.T(), eligible.ID, payments[0].InvoiceID)
	assert.Equal(suite.T(), backlog.ID, payments[1].InvoiceID)

	reloaded, err := suite.svc.FindInvoiceByUUID(ctx, eligible.UUID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), reloaded.Paid)
}

func (suite *BulkPaymentTestSuite) TestProviderWithSeveralBankAccountsPaidOnce() {
	ctx := context.Background()
	_, err := createBankAccount(suite.svc, suite.alice.ID, "EUR", 4343)
	assert.NoError(suite.T(), err)
	invoice, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2018-01",
		time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)

	bulkPayment, err := suite.svc.CreateBulkPayment(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	payments, err := suite.svc.CreatePayments(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	assert.Len(suite.T(), payments, 1)
	assert.Equal(suite.T(), invoice.ID, payments[0].InvoiceID)
}

func (suite *BulkPaymentTestSuite) TestPaysInvoicesFromCurrentBillingCycle() {
	ctx := context.Background()
	_, err := createRate(suite.svc, suite.alice.ID, suite.client.ID, "50", "EUR")
	assert.NoError(suite.T(), err)
	suite.svc.Config.BillingCycleClients = []string{"megacorp"}
	suite.source.Worklogs["alice"] = []worklog.Worklog{
		{ID: 1, IssueKey: "OC-1", IssueTitle: "Fix the frobnicator", TimeSpentSeconds: 7200},
	}

	err = suite.svc.RunApprovalPhase(ctx, time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	suite.mailer.Messages = nil

	bulkPayment, err := suite.svc.RunBulkPaymentJob(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), bulkPayment.Payments, 1)

	invoice, err := suite.svc.FindInvoiceByUUID(ctx, bulkPayment.Payments[0].Invoice.UUID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), invoice.Paid)
	assert.Equal(suite.T(), "2018-02", invoice.Number)
}

func (suite *BulkPaymentTestSuite) TestCSVFormat() {
	ctx := context.Background()
	inRange := time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC)
	invoice, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2018-01", inRange)
	assert.NoError(suite.T(), err)
	suite.addLineItem(invoice, "OC-1", "2", "50")
	suite.addLineItem(invoice, "OC-2", "0.5", "50")

	bulkPayment, err := suite.svc.CreateBulkPayment(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	_, err = suite.svc.CreatePayments(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	content, err := suite.svc.WriteBulkPaymentCSV(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	records, err := csv.NewReader(strings.NewReader(string(content))).ReadAll()
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 2)
	assert.Equal(suite.T(), []string{
		"recipientId", "name", "account", "sourceCurrency", "targetCurrency",
		"amountCurrency", "amount", "paymentReference",
	}, records[0])
	assert.Equal(suite.T(), []string{
		"4242", "alice", "DE0000" + strconv.FormatInt(suite.alice.ID, 10), "EUR", "EUR", "EUR", "125", "2018-01",
	}, records[1])
}

func (suite *BulkPaymentTestSuite) TestEmptyBatchWritesHeaderOnly() {
	ctx := context.Background()
	bulkPayment, err := suite.svc.CreateBulkPayment(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	_, err = suite.svc.CreatePayments(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	content, err := suite.svc.WriteBulkPaymentCSV(ctx, bulkPayment)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(),
		"recipientId,name,account,sourceCurrency,targetCurrency,amountCurrency,amount,paymentReference\n",
		string(content))
}

func (suite *BulkPaymentTestSuite) TestRunBulkPaymentJob() {
	ctx := context.Background()
	inRange := time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC)
	invoice, err := createInvoice(suite.svc, suite.alice.ID, suite.client.ID, "2018-01", inRange)
	assert.NoError(suite.T(), err)
	suite.addLineItem(invoice, "OC-1", "2", "50")

	now := time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC)
	bulkPayment, err := suite.svc.RunBulkPaymentJob(ctx, now)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), bulkPayment.Payments, 1)
	assert.NotEmpty(suite.T(), bulkPayment.CsvPath)

	sent := suite.mailer.Sent()
	assert.Len(suite.T(), sent, 1)
	assert.Equal(suite.T(), []string{"billing@craftbill.test"}, sent[0].To)
	assert.NotNil(suite.T(), sent[0].Attachment)
	assert.Equal(suite.T(), "transferwise_bulk_payment_csv_megacorp_2018-02-07.csv", sent[0].Attachment.Filename)
}

func TestBulkPaymentTestSuite(t *testing.T) {
	suite.Run(t, new(BulkPaymentTestSuite))
}
