package integration_tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/worklog"
)

type BillingCycleTestSuite struct {
	TestSuite
	svc    *service.BillinghubService
	mailer *RecordingMailer
	source *MockWorklogSource
	alice  *models.Account
	bob    *models.Account
	client *models.Account
}

func (suite *BillingCycleTestSuite) SetupSuite() {
	suite.source = &MockWorklogSource{Worklogs: map[string][]worklog.Worklog{}}
	svc, testMailer, err := BillinghubTestServiceInit(suite.source)
	if err != nil {
		suite.T().Fatalf("Error initializing test service: %v", err)
	}
	suite.svc = svc
	suite.mailer = testMailer
}

func (suite *BillingCycleTestSuite) SetupTest() {
	err := clearTables(suite.svc, "line_items", "invoice_changes", "invoices", "invoice_templates", "hourly_rates", "bank_accounts", "accounts")
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

	_, err = createRate(suite.svc, alice.ID, client.ID, "50", "EUR")
	assert.NoError(suite.T(), err)
	_, err = createRate(suite.svc, bob.ID, client.ID, "80", "EUR")
	assert.NoError(suite.T(), err)

	suite.svc.Config.BillingCycleClients = []string{"megacorp"}
	suite.alice = alice
	suite.bob = bob
	suite.client = client

	suite.source.Worklogs["alice"] = []worklog.Worklog{
		{ID: 1, IssueKey: "OC-1", IssueTitle: "Fix the frobnicator", TimeSpentSeconds: 7200},
	}
	suite.source.Worklogs["bob"] = []worklog.Worklog{
		{ID: 2, IssueKey: "OC-2", IssueTitle: "Audit the frobnicator", TimeSpentSeconds: 7200},
	}
}

func (suite *BillingCycleTestSuite) TestNotificationPhase() {
	err := suite.svc.RunNotificationPhase(context.Background(), time.Date(2018, 2, 1, 9, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)

	sent := suite.mailer.Sent()
	assert.Len(suite.T(), sent, 1)
	assert.Equal(suite.T(), "Preparing your invoice for January", sent[0].Subject)
	assert.Equal(suite.T(), []string{"billing@megacorp.test"}, sent[0].Cc)
	assert.ElementsMatch(suite.T(), []string{"alice@provider.test", "bob@provider.test"}, sent[0].Bcc)
	assert.Contains(suite.T(), sent[0].Body, "February 3")
}

func (suite *BillingCycleTestSuite) TestApprovalPhaseCreatesInvoices() {
	ctx := context.Background()
	now := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	err := suite.svc.RunApprovalPhase(ctx, now)
	assert.NoError(suite.T(), err)

	aliceInvoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.alice.ID, suite.client.ID, now)
	assert.NoError(suite.T(), err)
	bobInvoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.bob.ID, suite.client.ID, now)
	assert.NoError(suite.T(), err)

	// default scheme numbers by billing month
	assert.Equal(suite.T(), "2018-02", aliceInvoice.Number)
	assert.Equal(suite.T(), common.ApprovalNotApproved, aliceInvoice.Approved)
	assert.Equal(suite.T(), "2018-01-01", aliceInvoice.BillingStartDate.Format("2006-01-02"))
	assert.Equal(suite.T(), "2018-01-31", aliceInvoice.BillingEndDate.Format("2006-01-02"))

	aliceItems, err := suite.svc.AggregateInvoice(ctx, aliceInvoice)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), aliceItems, 1)
	assert.Equal(suite.T(), "100", models.TotalCost(aliceItems).String())

	bobItems, err := suite.svc.AggregateInvoice(ctx, bobInvoice)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "160", models.TotalCost(bobItems).String())

	sent := suite.mailer.Sent()
	assert.Len(suite.T(), sent, 2)
	for _, message := range sent {
		assert.Equal(suite.T(), "Approve your invoice for January", message.Subject)
		assert.NotNil(suite.T(), message.Attachment)
	}
	approvalBodies := sent[0].Body + sent[1].Body
	assert.Contains(suite.T(), approvalBodies,
		"https://billing.craftbill.test/invoice/"+aliceInvoice.UUID+"/approve")
	assert.Contains(suite.T(), approvalBodies,
		"https://billing.craftbill.test/invoice/"+bobInvoice.UUID+"/approve")
}

func (suite *BillingCycleTestSuite) TestApprovalPhaseReusesExistingInvoice() {
	ctx := context.Background()
	now := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, now))
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, now))

	count, err := suite.svc.DB.NewSelect().Model((*models.Invoice)(nil)).
		Where("provider_id = ?", suite.alice.ID).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *BillingCycleTestSuite) TestManualApproval() {
	ctx := context.Background()
	now := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, now))

	invoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.alice.ID, suite.client.ID, now)
	assert.NoError(suite.T(), err)

	approved, err := suite.svc.ApproveInvoice(ctx, invoice.UUID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.ApprovalManually, approved.Approved)

	// approving twice behaves like approving a missing invoice
	_, err = suite.svc.ApproveInvoice(ctx, invoice.UUID)
	assert.ErrorIs(suite.T(), err, service.ErrInvoiceNotFound)
}

func (suite *BillingCycleTestSuite) TestFinalPhaseAutoApproves() {
	ctx := context.Background()
	approvalTime := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	finalTime := time.Date(2018, 2, 5, 9, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, approvalTime))

	// alice approves by hand, bob never reacts
	aliceInvoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.alice.ID, suite.client.ID, approvalTime)
	assert.NoError(suite.T(), err)
	_, err = suite.svc.ApproveInvoice(ctx, aliceInvoice.UUID)
	assert.NoError(suite.T(), err)
	suite.mailer.Messages = nil

	assert.NoError(suite.T(), suite.svc.RunFinalPhase(ctx, finalTime))

	aliceInvoice, err = suite.svc.FindInvoiceByUUID(ctx, aliceInvoice.UUID)
	assert.NoError(suite.T(), err)
	bobInvoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.bob.ID, suite.client.ID, finalTime)
	assert.NoError(suite.T(), err)

	// a manual approval is never demoted to automatic
	assert.Equal(suite.T(), common.ApprovalManually, aliceInvoice.Approved)
	assert.Equal(suite.T(), common.ApprovalAutomatically, bobInvoice.Approved)

	sent := suite.mailer.Sent()
	assert.Len(suite.T(), sent, 2)
	for _, message := range sent {
		assert.Equal(suite.T(), "Your approved invoice for January", message.Subject)
	}
}

func (suite *BillingCycleTestSuite) TestManualApprovalDuringFinalPhaseWins() {
	ctx := context.Background()
	approvalTime := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	finalTime := time.Date(2018, 2, 5, 9, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, approvalTime))

	bobInvoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.bob.ID, suite.client.ID, approvalTime)
	assert.NoError(suite.T(), err)
	suite.mailer.Messages = nil

	// bob clicks the approval link from his email while the phase is
	// still delivering the first invoice
	approved := false
	suite.mailer.OnSend = func(message mailer.Message) {
		if approved {
			return
		}
		approved = true
		_, err := suite.svc.ApproveInvoice(ctx, bobInvoice.UUID)
		assert.NoError(suite.T(), err)
	}

	assert.NoError(suite.T(), suite.svc.RunFinalPhase(ctx, finalTime))

	bobInvoice, err = suite.svc.FindInvoiceByUUID(ctx, bobInvoice.UUID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.ApprovalManually, bobInvoice.Approved)

	changes := []*models.InvoiceChange{}
	err = suite.svc.DB.NewSelect().Model(&changes).
		Where("invoice_id = ? AND change = ?", bobInvoice.ID, "approved automatically").
		Scan(ctx)
	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), changes)
}

func (suite *BillingCycleTestSuite) TestInvoiceChangesAreAudited() {
	ctx := context.Background()
	now := time.Date(2018, 2, 3, 9, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.svc.RunApprovalPhase(ctx, now))

	invoice, err := suite.svc.LatestInvoiceForPeriod(ctx, suite.alice.ID, suite.client.ID, now)
	assert.NoError(suite.T(), err)
	_, err = suite.svc.ApproveInvoice(ctx, invoice.UUID)
	assert.NoError(suite.T(), err)

	changes := []*models.InvoiceChange{}
	err = suite.svc.DB.NewSelect().Model(&changes).
		Where("invoice_id = ?", invoice.ID).Order("id ASC").Scan(ctx)
	assert.NoError(suite.T(), err)
	assert.GreaterOrEqual(suite.T(), len(changes), 2)
	assert.True(suite.T(), strings.HasPrefix(changes[0].Change, "created with number"))
	assert.Equal(suite.T(), "approved manually", changes[len(changes)-1].Change)
}

func TestBillingCycleTestSuite(t *testing.T) {
	suite.Run(t, new(BillingCycleTestSuite))
}
