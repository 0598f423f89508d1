package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/responses"
	"github.com/craftbill/billinghub.go/lib/service"
)

// PaymentController : Invoice payment and bulk payment export controller struct
type PaymentController struct {
	svc *service.BillinghubService
}

func NewPaymentController(svc *service.BillinghubService) *PaymentController {
	return &PaymentController{svc: svc}
}

type PayInvoiceResponse struct {
	UUID     string          `json:"uuid"`
	Number   string          `json:"number"`
	Paid     bool            `json:"paid"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// PayInvoice marks an invoice as paid outside a bulk payment batch.
// Paying an already paid invoice returns 404.
func (controller *PaymentController) PayInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	invoice, err := controller.svc.MarkInvoicePaid(ctx, c.Param("uuid"))
	if err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		c.Logger().Errorf("Failed to pay invoice %s: %v", c.Param("uuid"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	aggregated, err := controller.svc.AggregateInvoice(ctx, invoice)
	if err != nil {
		c.Logger().Errorf("Failed to aggregate invoice %s: %v", invoice.UUID, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	currency := ""
	if len(aggregated) > 0 {
		currency = aggregated[0].Currency
	}
	return c.JSON(http.StatusOK, &PayInvoiceResponse{
		UUID:     invoice.UUID,
		Number:   invoice.Number,
		Paid:     invoice.Paid,
		Total:    models.TotalCost(aggregated),
		Currency: currency,
	})
}

// GetBulkPaymentCSV streams the CSV export of a bulk payment batch.
func (controller *PaymentController) GetBulkPaymentCSV(c echo.Context) error {
	ctx := c.Request().Context()
	bulkPayment, err := controller.svc.FindBulkPaymentByUUID(ctx, c.Param("uuid"))
	if err != nil {
		if errors.Is(err, service.ErrBulkPaymentNotFound) {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		c.Logger().Errorf("Failed to load bulk payment %s: %v", c.Param("uuid"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	err = controller.svc.LoadBulkPaymentInvoices(ctx, bulkPayment)
	if err != nil {
		c.Logger().Errorf("Failed to load payments of bulk payment %s: %v", bulkPayment.UUID, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	content, err := controller.svc.WriteBulkPaymentCSV(ctx, bulkPayment)
	if err != nil {
		c.Logger().Errorf("Failed to render bulk payment %s: %v", bulkPayment.UUID, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", bulkPayment.CsvFilename(bulkPayment.Sender.Login)))
	return c.Blob(http.StatusOK, "text/csv", content)
}
