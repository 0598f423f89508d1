package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/craftbill/billinghub.go/db/models"
	"github.com/craftbill/billinghub.go/lib/responses"
	"github.com/craftbill/billinghub.go/lib/service"
)

// InvoiceController : Invoice lookup and approval controller struct
type InvoiceController struct {
	svc *service.BillinghubService
}

func NewInvoiceController(svc *service.BillinghubService) *InvoiceController {
	return &InvoiceController{svc: svc}
}

type Invoice struct {
	UUID             string          `json:"uuid"`
	Number           string          `json:"number"`
	Date             time.Time       `json:"date"`
	BillingStartDate time.Time       `json:"billing_start_date"`
	BillingEndDate   time.Time       `json:"billing_end_date"`
	DueDate          time.Time       `json:"due_date"`
	Approved         string          `json:"approved"`
	Paid             bool            `json:"paid"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	PdfPath          string          `json:"pdf_path,omitempty"`
}

type LineItem struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

type InvoiceDetailResponse struct {
	Invoice
	LineItems []LineItem `json:"line_items"`
}

// GetInvoice returns one invoice with its aggregated line items.
func (controller *InvoiceController) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	invoice, err := controller.svc.FindInvoiceByUUID(ctx, c.Param("uuid"))
	if err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		c.Logger().Errorf("Failed to load invoice %s: %v", c.Param("uuid"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	aggregated, err := controller.svc.AggregateInvoice(ctx, invoice)
	if err != nil {
		c.Logger().Errorf("Failed to aggregate invoice %s: %v", invoice.UUID, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	response := InvoiceDetailResponse{
		Invoice: Invoice{
			UUID:             invoice.UUID,
			Number:           invoice.Number,
			Date:             invoice.Date,
			BillingStartDate: invoice.BillingStartDate,
			BillingEndDate:   invoice.BillingEndDate,
			DueDate:          invoice.DueDate,
			Approved:         invoice.Approved,
			Paid:             invoice.Paid,
			Total:            models.TotalCost(aggregated),
			PdfPath:          invoice.PdfPath,
		},
		LineItems: make([]LineItem, 0, len(aggregated)),
	}
	for _, item := range aggregated {
		response.LineItems = append(response.LineItems, LineItem{
			Key:      item.Key,
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
			Total:    item.Total,
			Currency: item.Currency,
		})
		response.Currency = item.Currency
	}
	return c.JSON(http.StatusOK, response)
}

// ApproveInvoice marks an invoice as manually approved. Approving an
// invoice that is already approved returns 404, matching the lookup of
// a not-yet-approved invoice.
func (controller *InvoiceController) ApproveInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	invoice, err := controller.svc.ApproveInvoice(ctx, c.Param("uuid"))
	if err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		c.Logger().Errorf("Failed to approve invoice %s: %v", c.Param("uuid"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	return c.JSON(http.StatusOK, &Invoice{
		UUID:     invoice.UUID,
		Number:   invoice.Number,
		Date:     invoice.Date,
		DueDate:  invoice.DueDate,
		Approved: invoice.Approved,
		Paid:     invoice.Paid,
	})
}
