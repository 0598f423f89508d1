package integration_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/craftbill/billinghub.go/common"
	"github.com/craftbill/billinghub.go/controllers"
	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/lib/tokens"
	"github.com/craftbill/billinghub.go/lib/transport"
	"github.com/craftbill/billinghub.go/worklog"
)

const testAdminToken = "admin-test-token"

type EndpointTestSuite struct {
	TestSuite
	svc     *service.BillinghubService
	alice   *models.Account
	client  *models.Account
	invoice *models.Invoice
}

func (suite *EndpointTestSuite) SetupSuite() {
	svc, _, err := BillinghubTestServiceInit(&MockWorklogSource{Worklogs: map[string][]worklog.Worklog{}})
	if err != nil {
		suite.T().Fatalf("Error initializing test service: %v", err)
	}
	svc.Config.AdminToken = testAdminToken
	suite.svc = svc

	e := transport.InitEcho(svc.Config, svc.Logger)
	logMw := transport.CreateLoggingMiddleware(svc.Logger)
	admin := e.Group("", tokens.AdminTokenMiddleware(svc.Config.AdminToken), logMw)
	transport.RegisterEndpoints(svc, e, admin, transport.CreateRateLimitMiddleware(100, 10), logMw)
	suite.echo = e
}

func (suite *EndpointTestSuite) SetupTest() {
	err := clearTables(suite.svc, "transfer_wise_payments", "transfer_wise_bulk_payments",
		"line_items", "invoice_changes", "invoices", "hourly_rates", "bank_accounts", "accounts")
	assert.NoError(suite.T(), err)

	alice, err := createAccount(suite.svc, "alice", "alice@provider.test", "")
	assert.NoError(suite.T(), err)
	client, err := createAccount(suite.svc, "megacorp", "billing@megacorp.test", "MegaCorp Inc")
	assert.NoError(suite.T(), err)
	_, err = createBankAccount(suite.svc, alice.ID, "EUR", 4242)
	assert.NoError(suite.T(), err)

	invoice, err := createInvoice(suite.svc, alice.ID, client.ID, "2018-01",
		time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	item := &models.LineItem{
		InvoiceID:  invoice.ID,
		LineItemID: 1,
		Key:        "OC-1",
		Name:       "Fix the frobnicator",
		Quantity:   decimal.RequireFromString("2"),
		Price:      decimal.RequireFromString("50"),
		Currency:   "EUR",
		Tag:        common.WorklogTag,
	}
	_, err = suite.svc.DB.NewInsert().Model(item).Exec(context.Background())
	assert.NoError(suite.T(), err)

	suite.alice = alice
	suite.client = client
	suite.invoice = invoice
}

func (suite *EndpointTestSuite) request(method, target string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authorized {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	suite.echo.ServeHTTP(rec, req)
	return rec
}

func (suite *EndpointTestSuite) TestGetInvoice() {
	rec := suite.request(http.MethodGet, "/invoices/"+suite.invoice.UUID, true)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)

	response := &controllers.InvoiceDetailResponse{}
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(response))
	assert.Equal(suite.T(), "2018-01", response.Number)
	assert.Equal(suite.T(), "100", response.Total.String())
	assert.Equal(suite.T(), "EUR", response.Currency)
	assert.Len(suite.T(), response.LineItems, 1)
}

func (suite *EndpointTestSuite) TestGetInvoiceRequiresAdminToken() {
	rec := suite.request(http.MethodGet, "/invoices/"+suite.invoice.UUID, false)
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *EndpointTestSuite) TestGetUnknownInvoice() {
	rec := suite.request(http.MethodGet, "/invoices/no-such-uuid", true)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *EndpointTestSuite) TestApproveInvoice() {
	// the approval link is public, no token needed
	rec := suite.request(http.MethodPost, "/invoice/"+suite.invoice.UUID+"/approve", false)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)

	response := &controllers.Invoice{}
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(response))
	assert.Equal(suite.T(), common.ApprovalManually, response.Approved)

	// a second click behaves like a missing invoice
	rec = suite.request(http.MethodPost, "/invoice/"+suite.invoice.UUID+"/approve", false)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *EndpointTestSuite) TestPayInvoice() {
	rec := suite.request(http.MethodPost, "/invoice/"+suite.invoice.UUID+"/pay", true)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)

	response := &controllers.PayInvoiceResponse{}
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(response))
	assert.True(suite.T(), response.Paid)
	assert.Equal(suite.T(), "100", response.Total.String())
	assert.Equal(suite.T(), "EUR", response.Currency)

	rec = suite.request(http.MethodPost, "/invoice/"+suite.invoice.UUID+"/pay", true)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *EndpointTestSuite) TestBulkPaymentCSV() {
	ctx := context.Background()
	suite.svc.Config.BulkPaymentSender = "megacorp"
	bulkPayment, err := suite.svc.CreateBulkPayment(ctx, time.Date(2018, 2, 7, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	_, err = suite.svc.CreatePayments(ctx, bulkPayment)
	assert.NoError(suite.T(), err)

	rec := suite.request(http.MethodGet, "/bulkpayments/"+bulkPayment.UUID+"/csv", true)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(suite.T(), rec.Body.String(), "4242,alice,")
	assert.Contains(suite.T(), rec.Header().Get("Content-Disposition"),
		fmt.Sprintf("transferwise_bulk_payment_csv_megacorp_%s.csv", bulkPayment.Date.Format("2006-01-02")))
}

func TestEndpointTestSuite(t *testing.T) {
	suite.Run(t, new(EndpointTestSuite))
}
