package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/craftbill/billinghub.go/controllers"
	"github.com/craftbill/billinghub.go/lib/service"
)

// RegisterEndpoints wires the HTTP API. The approval endpoint is public
// (providers click it from their email, authenticated by the invoice
// UUID); everything else sits behind the admin token.
func RegisterEndpoints(svc *service.BillinghubService, e *echo.Echo, admin *echo.Group, strictRateLimitMiddleware echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	invoiceCtrl := controllers.NewInvoiceController(svc)
	paymentCtrl := controllers.NewPaymentController(svc)

	e.POST("/invoice/:uuid/approve", invoiceCtrl.ApproveInvoice, strictRateLimitMiddleware, logMw)

	admin.GET("/invoices/:uuid", invoiceCtrl.GetInvoice)
	admin.POST("/invoice/:uuid/pay", paymentCtrl.PayInvoice)
	admin.GET("/bulkpayments/:uuid/csv", paymentCtrl.GetBulkPaymentCSV)
}
