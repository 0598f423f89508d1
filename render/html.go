package render

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
)

//go:embed templates/invoice.html
var invoiceTemplateHTML string

var invoiceTemplate = template.Must(template.New("invoice").Parse(invoiceTemplateHTML))

// HTMLRenderer renders invoices to a standalone HTML document.
type HTMLRenderer struct{}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

func (r *HTMLRenderer) RenderInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	var buf bytes.Buffer
	err := invoiceTemplate.Execute(&buf, data)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
